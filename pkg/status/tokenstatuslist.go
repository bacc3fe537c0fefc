package status

import (
	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/cbordata"
	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/cose"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// unmarshalCOSESign1 decodes an untagged COSE_Sign1 message, the form
// BuildCOSE produces and mdoc's IssuerAuth/DeviceAuth also use.
func unmarshalCOSESign1(data []byte) (*gocose.UntaggedSign1Message, error) {
	var msg gocose.UntaggedSign1Message
	if err := cbordata.Unmarshal(data, &msg); err != nil {
		return nil, vcerr.Parse("status: invalid cose_sign1 message").Wrap(err)
	}
	return &msg, nil
}

// Value is an IETF Token Status List status value (draft-ietf-oauth-status-list).
type Value int

const (
	ValueValid     Value = 0x00
	ValueInvalid   Value = 0x01
	ValueSuspended Value = 0x02
)

// TokenStatusList packs one status value per entry into a bitstring
// whose bit width is given by Bits (1, 2, 4, or 8), the Token Status
// List encoding's packing rule. It packs LSB-first within each byte, as
// BuildList does for the W3C format, generalized to more than one bit
// per entry; BuildJWT shares the W3C list's CompressToBase64URL step.
type TokenStatusList struct {
	Bits int
	List []byte
}

// NewTokenStatusList packs values at Bits-per-entry into a fresh list.
func NewTokenStatusList(values []Value, bits int) (*TokenStatusList, error) {
	switch bits {
	case 1, 2, 4, 8:
	default:
		return nil, vcerr.Usage("status: token status list bits must be 1, 2, 4, or 8, got %d", bits)
	}

	perByte := 8 / bits
	numBytes := (len(values) + perByte - 1) / perByte
	list := make([]byte, numBytes)
	for i, v := range values {
		byteIndex := i / perByte
		shift := (i % perByte) * bits
		list[byteIndex] |= byte(v) << uint(shift)
	}
	return &TokenStatusList{Bits: bits, List: list}, nil
}

// Get returns the status value at index.
func (l *TokenStatusList) Get(index int) Value {
	perByte := 8 / l.Bits
	byteIndex := index / perByte
	shift := uint((index % perByte) * l.Bits)
	mask := byte(1<<uint(l.Bits) - 1)
	return Value((l.List[byteIndex] >> shift) & mask)
}

// tokenStatusListClaims is the JWT payload carrying the packed list
// (draft-ietf-oauth-status-list section 5/6).
type tokenStatusListClaims struct {
	Issuer   string         `json:"iss"`
	Subject  string         `json:"sub"`
	IssuedAt int64          `json:"iat"`
	TTL      int64          `json:"ttl,omitempty"`
	Status   statusListBody `json:"status_list"`
}

type statusListBody struct {
	Bits int    `json:"bits"`
	List string `json:"lst"` // base64url(compressed list bytes)
}

// BuildJWT signs a Token Status List as a JWT, the "statuslist+jwt"
// media-type variant of draft-ietf-oauth-status-list.
// ttlSeconds bounds how long a verifier may cache the list; zero omits
// the claim.
func BuildJWT(engine *jose.Engine, km *vckey.KeyMaterial, issuer, subject string, issuedAt, ttlSeconds int64, list *TokenStatusList) (string, error) {
	encoded, err := CompressToBase64URL(list.List)
	if err != nil {
		return "", err
	}
	claims := tokenStatusListClaims{
		Issuer: issuer, Subject: subject, IssuedAt: issuedAt, TTL: ttlSeconds,
		Status: statusListBody{Bits: list.Bits, List: encoded},
	}
	payload, err := codec.MarshalJSON(claims)
	if err != nil {
		return "", err
	}
	return engine.Sign(km, payload, jose.Header{"typ": "statuslist+jwt"})
}

// VerifyJWT verifies a Token Status List JWT: signature via resolver,
// iss equal to the credential issuer, sub equal to the status URI the
// credential references, and iat in the past.
// Pass an empty expectedIssuer/expectedSubject to skip that comparison.
func VerifyJWT(engine *jose.Engine, token string, resolver jose.KeyResolver, expectedIssuer, expectedSubject string, clock timeutil.TimeProvider) (*TokenStatusList, error) {
	jws, err := engine.Verify(token, resolver)
	if err != nil {
		return nil, err
	}
	var claims tokenStatusListClaims
	if err := codec.UnmarshalJSON(jws.Payload, &claims); err != nil {
		return nil, vcerr.Parse("status: invalid token status list claims").Wrap(err)
	}

	if expectedIssuer != "" && claims.Issuer != expectedIssuer {
		return nil, vcerr.InvalidStructure("status: token status list iss does not match credential issuer")
	}
	if expectedSubject != "" && claims.Subject != expectedSubject {
		return nil, vcerr.InvalidStructure("status: token status list sub does not match the status uri")
	}
	if clock == nil {
		clock = timeutil.WallClock
	}
	if claims.IssuedAt > clock.Now().Unix() {
		return nil, vcerr.InvalidStructure("status: token status list iat is in the future")
	}

	raw, err := DecompressFromBase64URL(claims.Status.List)
	if err != nil {
		return nil, err
	}
	return &TokenStatusList{Bits: claims.Status.Bits, List: raw}, nil
}

// cwtStatusListPayload is the CBOR payload of the COSE-encoded variant
// ("statuslist+cose"), which mdoc-facing status checks use since mdoc
// verification otherwise never touches JSON.
type cwtStatusListPayload struct {
	Subject  string         `cbor:"2,keyasint"`
	IssuedAt int64          `cbor:"6,keyasint"`
	Status   statusListCBOR `cbor:"65534,keyasint"`
}

type statusListCBOR struct {
	Bits int    `cbor:"bits"`
	List []byte `cbor:"lst"`
}

// BuildCOSE signs a Token Status List as a COSE_Sign1 message over a
// CBOR-encoded claims payload, for verifiers that check mdoc status
// without ever parsing JSON.
func BuildCOSE(km *vckey.KeyMaterial, subject string, issuedAt int64, list *TokenStatusList) ([]byte, error) {
	payload := cwtStatusListPayload{
		Subject: subject, IssuedAt: issuedAt,
		Status: statusListCBOR{Bits: list.Bits, List: list.List},
	}
	cborPayload, err := cbordata.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg, err := cose.Sign1(km, cborPayload, nil, nil)
	if err != nil {
		return nil, err
	}
	return cbordata.Marshal(msg)
}

// VerifyCOSE verifies a COSE-encoded Token Status List and returns the
// unpacked list.
func VerifyCOSE(data []byte, pub interface{}) (*TokenStatusList, error) {
	msg, err := unmarshalCOSESign1(data)
	if err != nil {
		return nil, err
	}
	if err := cose.Verify1(msg, pub); err != nil {
		return nil, err
	}

	var claims cwtStatusListPayload
	if err := cbordata.Unmarshal(msg.Payload, &claims); err != nil {
		return nil, vcerr.Parse("status: invalid cose status list claims").Wrap(err)
	}
	return &TokenStatusList{Bits: claims.Status.Bits, List: claims.Status.List}, nil
}
