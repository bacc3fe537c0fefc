package sdjwt

import (
	josejwk "github.com/go-jose/go-jose/v3"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// ConfirmationKey extracts the holder binding key from an SD-JWT
// payload's cnf.jwk claim, the key every key-binding JWT must verify
// under.
func ConfirmationKey(payload codec.ClaimSet) (interface{}, error) {
	cnfRaw, ok := payload["cnf"].(map[string]interface{})
	if !ok {
		return nil, vcerr.InvalidStructure("sdjwt: payload has no cnf claim")
	}
	jwkRaw, ok := cnfRaw["jwk"]
	if !ok {
		return nil, vcerr.InvalidStructure("sdjwt: cnf claim has no jwk")
	}
	b, err := codec.MarshalJSON(jwkRaw)
	if err != nil {
		return nil, err
	}
	var jwk josejwk.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return nil, vcerr.Parse("sdjwt: invalid cnf.jwk").Wrap(err)
	}
	return jwk.Key, nil
}

// ResolveDisclosed recomputes each disclosure's digest and checks it
// appears in the SD-JWT payload's `_sd` array, then returns the claim
// set with every disclosed claim merged back in under its name. An
// array-element disclosure (no Name) cannot be resolved against a
// top-level `_sd` array and is rejected — this module's BuildClaims
// never produces array-element disclosures, so that shape only arises
// from a non-conforming issuer.
func ResolveDisclosed(payload codec.ClaimSet, disclosures []*Disclosure) (codec.ClaimSet, error) {
	algName, _ := payload[sdAlgKey].(string)
	if algName == "" {
		algName = string(vckey.DigestSHA256)
	}
	alg := vckey.DigestAlg(algName)

	sdDigests := map[string]struct{}{}
	switch sdRaw := payload[sdKey].(type) {
	case []interface{}:
		// the shape a JSON-decoded payload carries
		for _, d := range sdRaw {
			if s, ok := d.(string); ok {
				sdDigests[s] = struct{}{}
			}
		}
	case []string:
		// the shape BuildClaims produces before serialization
		for _, s := range sdRaw {
			sdDigests[s] = struct{}{}
		}
	}

	resolved := codec.ClaimSet{}
	for k, v := range payload {
		if k == sdKey || k == sdAlgKey {
			continue
		}
		resolved[k] = v
	}

	for _, d := range disclosures {
		if d.Name == "" {
			return nil, vcerr.InvalidStructure("sdjwt: top-level array-element disclosures are not supported")
		}
		digest, err := d.Digest(alg)
		if err != nil {
			return nil, err
		}
		if _, ok := sdDigests[digest]; !ok {
			return nil, vcerr.InvalidSignature("sdjwt: disclosure for %q does not match any _sd digest", d.Name)
		}
		resolved[d.Name] = d.Value
	}

	return resolved, nil
}

// KeyBindingClaims is the payload of a key-binding JWT (SD-JWT VC
// section 4.3): it binds a presentation to the audience/nonce a
// verifier supplied and to the exact SD-JWT+disclosures it accompanies
// via sd_hash.
type KeyBindingClaims struct {
	Nonce    string `json:"nonce"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
	SDHash   string `json:"sd_hash"`
}

// ComputeSDHash hashes the presentation up to (but not including) the
// key-binding JWT segment — SD-JWT+"~"+disclosures+"~" — the value
// `sd_hash` commits to.
func ComputeSDHash(sdJWT string, disclosures []*Disclosure, alg vckey.DigestAlg) (string, error) {
	presentation := Combine(sdJWT, disclosures) + CombinedFormatSeparator
	h, err := (vckey.Provider{}).Digest(alg, []byte(presentation))
	if err != nil {
		return "", err
	}
	return codec.B64URL(h), nil
}

// BuildKeyBindingJWT signs a KeyBindingClaims payload with the holder's
// key, the JWT a holder attaches when presenting an SD-JWT VC.
func BuildKeyBindingJWT(engine *jose.Engine, km *vckey.KeyMaterial, claims KeyBindingClaims) (string, error) {
	payload, err := codec.MarshalJSON(claims)
	if err != nil {
		return "", err
	}
	return engine.Sign(km, payload, jose.Header{"typ": "kb+jwt"})
}

// VerifyKeyBindingJWT checks the key-binding JWT's signature against
// the holder key named in cnf.jwk/cnf.kid (resolver encapsulates that
// lookup), then checks sd_hash against the presentation it accompanies.
func VerifyKeyBindingJWT(engine *jose.Engine, kbJWT string, resolver jose.KeyResolver, sdJWT string, disclosures []*Disclosure, alg vckey.DigestAlg, expectedAudience, expectedNonce string) (*KeyBindingClaims, error) {
	jws, err := engine.Verify(kbJWT, resolver)
	if err != nil {
		return nil, err
	}

	var claims KeyBindingClaims
	if err := codec.UnmarshalJSON(jws.Payload, &claims); err != nil {
		return nil, vcerr.Parse("sdjwt: invalid key-binding jwt claims").Wrap(err)
	}

	if claims.Audience != expectedAudience {
		return nil, vcerr.InvalidStructure("sdjwt: key-binding jwt audience mismatch")
	}
	if claims.Nonce != expectedNonce {
		return nil, vcerr.InvalidStructure("sdjwt: key-binding jwt nonce mismatch")
	}

	wantHash, err := ComputeSDHash(sdJWT, disclosures, alg)
	if err != nil {
		return nil, err
	}
	if claims.SDHash != wantHash {
		return nil, vcerr.InvalidSignature("sdjwt: sd_hash does not match presented disclosures")
	}

	return &claims, nil
}
