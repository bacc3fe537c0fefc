package vckey

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// NewLegacyES256K generates a secp256k1 KeyMaterial for the ES256K
// compatibility paths. Mainstream issuance stays on New; a key built
// here signs and verifies only through the ES256K JWS signing method.
func NewLegacyES256K(role Role) (*KeyMaterial, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, vcerr.Usage("generate secp256k1 key").Wrap(err)
	}
	return &KeyMaterial{role: role, alg: AlgES256K, priv: priv}, nil
}

// SignLegacyES256K and VerifyLegacyES256K back pkg/jose's ES256K JWS
// signing method, the compatibility path for Verifier-Attestation JWTs
// minted before an issuer's migration to P-256. No ECDH-ES key
// agreement ever uses secp256k1 — key agreement stays on
// P-256/P-384/P-521.
func (Provider) SignLegacyES256K(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	sig, err := ethcrypto.Sign(hash[:], priv)
	if err != nil {
		return nil, vcerr.InvalidSignature("es256k sign failed").Wrap(err)
	}
	return sig[:64], nil // drop the recovery byte; JWS has no room for it
}

// ParseLegacySecp256k1PublicKey parses a 33-byte compressed or 65-byte
// uncompressed secp256k1 public key, the encoding legacy attestation
// issuers publish their keys in.
func ParseLegacySecp256k1PublicKey(data []byte) (*ecdsa.PublicKey, error) {
	pub, err := btcec.ParsePubKey(data)
	if err != nil {
		return nil, vcerr.Parse("vckey: invalid secp256k1 public key").Wrap(err)
	}
	return pub.ToECDSA(), nil
}

func (Provider) VerifyLegacyES256K(pub *ecdsa.PublicKey, data, signature []byte) bool {
	if len(signature) != 64 {
		return false
	}
	hash := sha256.Sum256(data)
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return false
	}
	return ecdsa.Verify(pub, hash[:], r, s)
}
