package jose

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// JWS is a parsed compact JSON Web Signature: protected header, payload,
// and signature, each still available in both raw and decoded form so
// callers (SD-JWT's key-binding JWT, VC-JWT) can recompute the exact
// signing input.
type JWS struct {
	Protected     Header
	ProtectedB64  string
	Payload       []byte
	PayloadB64    string
	Signature     []byte
	SigningInput  string
}

// Engine builds and verifies compact JWS through golang-jwt's
// signing-method registry: the alg header resolves to a registered
// jwt.SigningMethod (the built-in ES256/ES384/ES512/RS256/PS256 methods
// plus the ES256K compatibility method in signing_method.go), which
// signs and verifies the compact signing string. The vckey provider
// stays attached for the JWE half of the engine.
type Engine struct {
	crypto *vckey.Provider
}

// New constructs a JWS engine.
func New() *Engine { return &Engine{crypto: vckey.NewProvider()} }

// Sign builds a compact JWS over payload, signing with km and merging
// extraHeaders into the protected header (kid is set automatically from
// km's self-identifier unless the caller overrides it).
func (e *Engine) Sign(km *vckey.KeyMaterial, payload []byte, extraHeaders Header) (string, error) {
	method := jwt.GetSigningMethod(string(km.Alg()))
	if method == nil {
		return "", vcerr.Usage("jose: no signing method registered for %s", km.Alg())
	}

	header := Header{"alg": method.Alg(), "typ": "JWT"}
	for k, v := range extraHeaders {
		header[k] = v
	}
	if _, ok := header["kid"]; !ok {
		if id, err := km.SelfID(); err == nil {
			header["kid"] = id
		}
	}

	headerJSON, err := codec.MarshalJSON(header)
	if err != nil {
		return "", err
	}
	headerB64 := codec.B64URL(headerJSON)
	payloadB64 := codec.B64URL(payload)
	signingInput := headerB64 + "." + payloadB64

	sig, err := method.Sign(signingInput, km.PrivateKey())
	if err != nil {
		return "", vcerr.Usage("jose: sign with %s", method.Alg()).Wrap(err)
	}

	return signingInput + "." + codec.B64URL(sig), nil
}

// Parse splits a compact JWS into its three segments without verifying
// the signature, for callers that need the header before they can pick
// a KeyResolver.
func Parse(token string) (*JWS, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, vcerr.Parse("jws: expected 3 segments, got %d", len(parts))
	}

	headerRaw, err := codec.B64URLDecode(parts[0])
	if err != nil {
		return nil, err
	}
	var header Header
	if err := codec.UnmarshalJSON(headerRaw, &header); err != nil {
		return nil, err
	}

	payload, err := codec.B64URLDecode(parts[1])
	if err != nil {
		return nil, err
	}
	sig, err := codec.B64URLDecode(parts[2])
	if err != nil {
		return nil, err
	}

	return &JWS{
		Protected:    header,
		ProtectedB64: parts[0],
		Payload:      payload,
		PayloadB64:   parts[1],
		Signature:    sig,
		SigningInput: parts[0] + "." + parts[1],
	}, nil
}

// Verify parses token and checks its signature against the key the
// resolver returns for its header. It returns the parsed JWS so callers
// can read claims without re-parsing.
func (e *Engine) Verify(token string, resolver KeyResolver) (*JWS, error) {
	jws, err := Parse(token)
	if err != nil {
		return nil, err
	}

	alg, _ := jws.Protected["alg"].(string)
	if alg == "" {
		return nil, vcerr.InvalidStructure("jws: missing alg header")
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, vcerr.Usage("jose: no signing method registered for %s", alg)
	}

	key, err := resolver.ResolveKey(jws.Protected)
	if err != nil {
		return nil, err
	}

	if err := method.Verify(jws.SigningInput, jws.Signature, key); err != nil {
		return nil, vcerr.InvalidSignature("jws: signature verification failed").Wrap(err)
	}
	return jws, nil
}
