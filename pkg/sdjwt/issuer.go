package sdjwt

import (
	"strings"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// Selective marks one top-level claim as selectively disclosable when
// passed to BuildClaims; claims not listed are sent in the clear.
type Selective struct {
	Name  string
	Value interface{}
}

// BuildClaims takes a base claim set (always disclosed in the clear)
// plus a list of selectively disclosable claims, and returns the
// SD-JWT payload claim set (with `_sd`/`_sd_alg` injected) alongside the
// disclosures the issuer must hand the holder out-of-band. Only the
// flat (non-nested) case is supported; nested object/array disclosure
// is out of this module's scope.
func BuildClaims(alwaysDisclosed codec.ClaimSet, selective []Selective, alg vckey.DigestAlg) (codec.ClaimSet, []*Disclosure, error) {
	claims := codec.ClaimSet{}
	for k, v := range alwaysDisclosed {
		claims[k] = v
	}

	disclosures := make([]*Disclosure, 0, len(selective))
	digests := make([]string, 0, len(selective))

	for _, s := range selective {
		d, err := NewClaimDisclosure(s.Name, s.Value)
		if err != nil {
			return nil, nil, err
		}
		digest, err := d.Digest(alg)
		if err != nil {
			return nil, nil, err
		}
		disclosures = append(disclosures, d)
		digests = append(digests, digest)
	}

	if len(digests) > 0 {
		claims[sdKey] = SortDigests(digests)
		claims[sdAlgKey] = string(alg)
	}

	return claims, disclosures, nil
}

// Combine serializes an SD-JWT and its disclosures into the
// "~"-joined combined format for issuance (no key-binding JWT yet).
func Combine(sdJWT string, disclosures []*Disclosure) string {
	out := sdJWT
	for _, d := range disclosures {
		out += CombinedFormatSeparator + d.Encoded
	}
	return out
}

// CombineForPresentation additionally appends a key-binding JWT,
// producing the format a holder sends to a verifier.
func CombineForPresentation(sdJWT string, disclosures []*Disclosure, kbJWT string) string {
	out := Combine(sdJWT, disclosures)
	out += CombinedFormatSeparator + kbJWT
	return out
}

// SplitIssuance parses an issuance combined format: SD-JWT followed by
// zero or more disclosures, no key-binding JWT.
func SplitIssuance(combined string) (sdJWT string, disclosures []*Disclosure, err error) {
	parts := strings.Split(combined, CombinedFormatSeparator)
	sdJWT = parts[0]
	for _, seg := range parts[1:] {
		if seg == "" {
			continue
		}
		d, perr := ParseDisclosure(seg)
		if perr != nil {
			return "", nil, perr
		}
		disclosures = append(disclosures, d)
	}
	return sdJWT, disclosures, nil
}

// SplitPresentation parses a presentation combined format: SD-JWT,
// disclosures, and a trailing key-binding JWT segment that may be
// empty. The last segment is always the key-binding JWT once there is
// more than one segment.
func SplitPresentation(combined string) (sdJWT string, disclosures []*Disclosure, kbJWT string, err error) {
	parts := strings.Split(combined, CombinedFormatSeparator)
	if len(parts) == 0 {
		return "", nil, "", vcerr.Parse("sdjwt: empty combined format")
	}
	sdJWT = parts[0]
	if len(parts) == 1 {
		return sdJWT, nil, "", nil
	}

	kbJWT = parts[len(parts)-1]
	for _, seg := range parts[1 : len(parts)-1] {
		if seg == "" {
			continue
		}
		d, perr := ParseDisclosure(seg)
		if perr != nil {
			return "", nil, "", perr
		}
		disclosures = append(disclosures, d)
	}
	return sdJWT, disclosures, kbJWT, nil
}
