// Package codec holds the small serialization helpers every wire format
// in the engine shares: base64url (JWS/JWE compact form, SD-JWT
// disclosures), and JSON marshaling into the map[string]interface{}
// shape credential claim sets travel in.
package codec

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// ClaimSet is a JSON object of arbitrary claims, the loosely typed
// representation credential subjects, headers, and proofs travel in.
type ClaimSet = map[string]interface{}

// B64URL encodes data without padding, the form every compact
// serialization (JWS, JWE, SD-JWT disclosures) in RFC 7515/7516/SD-JWT
// uses for its segments.
func B64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// B64URLDecode decodes an unpadded base64url string.
func B64URLDecode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, vcerr.Parse("codec: invalid base64url").Wrap(err)
	}
	return b, nil
}

// MarshalJSON marshals v to compact JSON, returning a vcerr.KindUsage
// error on failure since marshal failures are always a caller bug
// (unsupported types, cyclic structures) rather than malformed input.
func MarshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, vcerr.Usage("codec: marshal json").Wrap(err)
	}
	return b, nil
}

// UnmarshalJSON parses JSON bytes of untrusted origin (wire data), so
// failures are reported as vcerr.KindParse rather than KindUsage.
func UnmarshalJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return vcerr.Parse("codec: unmarshal json").Wrap(err)
	}
	return nil
}

// ToClaimSet round-trips v through JSON into a ClaimSet, flattening a
// typed struct into a map that contextual fields can be merged into.
func ToClaimSet(v interface{}) (ClaimSet, error) {
	b, err := MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	var m ClaimSet
	if err := UnmarshalJSON(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
