package jose

import (
	"crypto/ecdsa"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// SigningMethodES256K implements the secp256k1 JWS algorithm for the
// two compatibility paths that still emit it: Verifier-Attestation JWTs
// minted before an issuer's migration to P-256, and pre-migration
// request objects. Registered alongside golang-jwt's built-in methods
// so Engine.Sign/Verify pick it up through the same registry lookup as
// ES256/ES384/ES512/RS256/PS256.
type SigningMethodES256K struct{}

// Alg returns the algorithm name.
func (m *SigningMethodES256K) Alg() string {
	return string(vckey.AlgES256K)
}

// Sign signs a string with a secp256k1 private key.
func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, vcerr.Usage("jose: es256k signing requires an *ecdsa.PrivateKey")
	}
	return (vckey.Provider{}).SignLegacyES256K(priv, []byte(signingString))
}

// Verify verifies a signature. The key may be an *ecdsa.PublicKey or
// the 33/65-byte compressed/uncompressed encoding legacy issuers
// publish.
func (m *SigningMethodES256K) Verify(signingString string, signature []byte, key interface{}) error {
	var pub *ecdsa.PublicKey
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		pub = k
	case []byte:
		parsed, err := vckey.ParseLegacySecp256k1PublicKey(k)
		if err != nil {
			return err
		}
		pub = parsed
	default:
		return vcerr.UnknownKey("jose: es256k verification requires an *ecdsa.PublicKey or raw key bytes")
	}
	if !(vckey.Provider{}).VerifyLegacyES256K(pub, []byte(signingString), signature) {
		return vcerr.InvalidSignature("jose: es256k signature verification failed")
	}
	return nil
}

// ES256K is the ES256K signing method instance.
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}
