// Package vckey implements the engine's CryptoProvider and KeyMaterial.
// It is the sole boundary onto Go's crypto primitives: every algorithm
// here is a thin, constant-time-verify wrapper over crypto/ecdsa,
// crypto/rsa, crypto/aes, crypto/cipher, and crypto/hmac rather than a
// hand-rolled cipher.
//
// Signatures use the raw r||s encoding JWS and COSE both require on
// P-256/P-384/P-521; the secp256k1 path survives only as the legacy
// ES256K compatibility signer in legacy.go.
package vckey

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"math/big"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Alg identifies a JOSE/COSE signature algorithm.
type Alg string

const (
	AlgES256  Alg = "ES256"
	AlgES384  Alg = "ES384"
	AlgES512  Alg = "ES512"
	AlgRS256  Alg = "RS256"
	AlgPS256  Alg = "PS256"
	AlgES256K Alg = "ES256K" // legacy, see legacy.go
)

// AEADAlg identifies a JWE content-encryption algorithm (spec 4.1/4.2).
type AEADAlg string

const (
	AEADA128GCM    AEADAlg = "A128GCM"
	AEADA192GCM    AEADAlg = "A192GCM"
	AEADA256GCM    AEADAlg = "A256GCM"
	AEADA128CBCHS  AEADAlg = "A128CBC-HS256"
	AEADA192CBCHS  AEADAlg = "A192CBC-HS384"
	AEADA256CBCHS  AEADAlg = "A256CBC-HS512"
)

// DigestAlg identifies a hash algorithm for SD-JWT digests and status
// lists.
type DigestAlg string

const (
	DigestSHA256 DigestAlg = "sha-256"
	DigestSHA384 DigestAlg = "sha-384"
	DigestSHA512 DigestAlg = "sha-512"
)

// Provider implements sign/verify/ecdh/aead/digest/random as specified in
// section 4.1. It holds no key material itself — KeyMaterial supplies
// keys per call, so one Provider serves every role in a process.
type Provider struct{}

// NewProvider constructs the default CryptoProvider.
func NewProvider() *Provider { return &Provider{} }

// Sign produces a raw-r||s (EC) or big-endian (RSA) signature over data.
func (Provider) Sign(alg Alg, data []byte, priv crypto.PrivateKey) ([]byte, error) {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		ecPriv, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, vcerr.Usage("sign: %s requires an ecdsa.PrivateKey, got %T", alg, priv)
		}
		return signECRaw(ecPriv, hashFor(alg), data)
	case AlgRS256:
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, vcerr.Usage("sign: RS256 requires an rsa.PrivateKey, got %T", priv)
		}
		h := sha256.Sum256(data)
		return rsa.SignPKCS1v15(rand.Reader, rsaPriv, crypto.SHA256, h[:])
	case AlgPS256:
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, vcerr.Usage("sign: PS256 requires an rsa.PrivateKey, got %T", priv)
		}
		h := sha256.Sum256(data)
		return rsa.SignPSS(rand.Reader, rsaPriv, crypto.SHA256, h[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	default:
		return nil, vcerr.Usage("sign: unsupported algorithm %s", alg)
	}
}

// Verify reports whether signature is valid for data under pub. All
// comparisons inside go through crypto/ecdsa, crypto/rsa, or
// crypto/subtle (transitively) rather than byte-by-byte ==, satisfying
// the constant-time requirement on the comparison components.
func (Provider) Verify(alg Alg, data, signature []byte, pub crypto.PublicKey) bool {
	switch alg {
	case AlgES256, AlgES384, AlgES512:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		return verifyECRaw(ecPub, hashFor(alg), data, signature)
	case AlgRS256:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		h := sha256.Sum256(data)
		return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, h[:], signature) == nil
	case AlgPS256:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		h := sha256.Sum256(data)
		return rsa.VerifyPSS(rsaPub, crypto.SHA256, h[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}) == nil
	default:
		return false
	}
}

func hashFor(alg Alg) crypto.Hash {
	switch alg {
	case AlgES384:
		return crypto.SHA384
	case AlgES512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// signECRaw pads r and s to the curve's field width and concatenates
// them, rather than emitting ASN.1 DER, because JWS/COSE both require
// the fixed-width raw form.
func signECRaw(priv *ecdsa.PrivateKey, hash crypto.Hash, data []byte) ([]byte, error) {
	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, vcerr.InvalidSignature("ecdsa sign").Wrap(err)
	}

	keyBytes := fieldBytes(priv.Curve)
	sig := make([]byte, 2*keyBytes)
	r.FillBytes(sig[:keyBytes])
	s.FillBytes(sig[keyBytes:])
	return sig, nil
}

func verifyECRaw(pub *ecdsa.PublicKey, hash crypto.Hash, data, signature []byte) bool {
	keyBytes := fieldBytes(pub.Curve)
	if len(signature) != 2*keyBytes {
		return false
	}

	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	r := new(big.Int).SetBytes(signature[:keyBytes])
	s := new(big.Int).SetBytes(signature[keyBytes:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return false
	}

	return ecdsa.Verify(pub, digest, r, s)
}

func fieldBytes(curve elliptic.Curve) int {
	bits := curve.Params().BitSize
	return (bits + 7) / 8
}

// ECDH performs the P-256/P-384/P-521 Diffie-Hellman agreement used by
// ECDH-ES (RFC 7518 section 4.6). The shared secret is the X-coordinate of
// the agreed point, big-endian, padded to the field width.
func (Provider) ECDH(ephemeralPriv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey) ([]byte, error) {
	privECDH, err := ephemeralPriv.ECDH()
	if err != nil {
		return nil, vcerr.Usage("ecdh: invalid private key").Wrap(err)
	}
	pubECDH, err := peerPub.ECDH()
	if err != nil {
		return nil, vcerr.Usage("ecdh: invalid peer public key").Wrap(err)
	}
	secret, err := privECDH.ECDH(pubECDH)
	if err != nil {
		return nil, vcerr.InvalidSignature("ecdh agreement failed").Wrap(err)
	}
	return secret, nil
}

// GenerateEphemeral creates a fresh ephemeral key on the given curve, for
// one-shot ECDH-ES encryption.
func (Provider) GenerateEphemeral(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(curve, rand.Reader)
}

// CurveFor maps an ECDH curve name ("P-256", "P-384", "P-521") used in
// JWK "crv" fields to the stdlib elliptic.Curve.
func CurveFor(name string) (elliptic.Curve, error) {
	switch name {
	case "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, vcerr.Usage("unsupported curve %q", name)
	}
}

// ECDHCurveName is the inverse of CurveFor.
func ECDHCurveName(c elliptic.Curve) (string, error) {
	switch c {
	case elliptic.P256():
		return "P-256", nil
	case elliptic.P384():
		return "P-384", nil
	case elliptic.P521():
		return "P-521", nil
	default:
		return "", vcerr.Usage("unsupported curve, module scope is P-256/P-384/P-521 only")
	}
}

// AEADSeal encrypts pt under key/iv/aad per alg. For
// GCM algorithms the returned tag is produced by the cipher itself; for
// CBC-HS algorithms the key is split per the JWE composite-key rule and
// the tag is the first half of an HMAC computed per RFC 7518 section 5.2.
func (Provider) AEADSeal(alg AEADAlg, key, iv, aad, pt []byte) (ct, tag []byte, err error) {
	switch alg {
	case AEADA128GCM, AEADA192GCM, AEADA256GCM:
		return gcmSeal(key, iv, aad, pt)
	case AEADA128CBCHS, AEADA192CBCHS, AEADA256CBCHS:
		return cbcHSSeal(alg, key, iv, aad, pt)
	default:
		return nil, nil, vcerr.Usage("aead: unsupported algorithm %s", alg)
	}
}

// AEADOpen is the inverse of AEADSeal.
func (Provider) AEADOpen(alg AEADAlg, key, iv, aad, ct, tag []byte) ([]byte, error) {
	switch alg {
	case AEADA128GCM, AEADA192GCM, AEADA256GCM:
		return gcmOpen(key, iv, aad, ct, tag)
	case AEADA128CBCHS, AEADA192CBCHS, AEADA256CBCHS:
		return cbcHSOpen(alg, key, iv, aad, ct, tag)
	default:
		return nil, vcerr.Usage("aead: unsupported algorithm %s", alg)
	}
}

func gcmSeal(key, iv, aad, pt []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, vcerr.Usage("aes-gcm: bad key").Wrap(err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, nil, vcerr.Usage("aes-gcm: bad nonce size").Wrap(err)
	}
	sealed := gcm.Seal(nil, iv, pt, aad)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]
	return ct, tag, nil
}

func gcmOpen(key, iv, aad, ct, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vcerr.Usage("aes-gcm: bad key").Wrap(err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, vcerr.Usage("aes-gcm: bad nonce size").Wrap(err)
	}
	pt, err := gcm.Open(nil, iv, append(append([]byte{}, ct...), tag...), aad)
	if err != nil {
		return nil, vcerr.InvalidSignature("aes-gcm: authentication failed").Wrap(err)
	}
	return pt, nil
}

// cbcHSSeal implements the AES_CBC_HMAC_SHA2 composite algorithm (RFC
// 7518 section 5.2): the derived CEK is split in half, the first half is
// the HMAC key, the second half the AES-CBC key, and the tag is the
// leftmost half of HMAC(K_hmac, AAD || IV || CT || AAD-bit-length-be64).
func cbcHSSeal(alg AEADAlg, key, iv, aad, pt []byte) ([]byte, []byte, error) {
	hmacKey, encKey, newHash, tagLen, err := splitCBCHSKey(alg, key)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, vcerr.Usage("aes-cbc: bad key").Wrap(err)
	}
	padded := pkcs7Pad(pt, block.BlockSize())
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	tag := macCBCHS(newHash, hmacKey, aad, iv, ct, tagLen)
	return ct, tag, nil
}

func cbcHSOpen(alg AEADAlg, key, iv, aad, ct, tag []byte) ([]byte, error) {
	hmacKey, encKey, newHash, tagLen, err := splitCBCHSKey(alg, key)
	if err != nil {
		return nil, err
	}

	expected := macCBCHS(newHash, hmacKey, aad, iv, ct, tagLen)
	if !hmac.Equal(expected, tag) {
		return nil, vcerr.InvalidSignature("aes-cbc-hmac: authentication failed")
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, vcerr.Usage("aes-cbc: bad key").Wrap(err)
	}
	if len(ct) == 0 || len(ct)%block.BlockSize() != 0 {
		return nil, vcerr.Parse("aes-cbc: ciphertext not block-aligned")
	}
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)
	return pkcs7Unpad(padded)
}

// splitCBCHSKey applies the JWE "composite key" rule: the derived CEK is
// halved, the first half becomes the HMAC key and the second half the
// AES-CBC key.
func splitCBCHSKey(alg AEADAlg, key []byte) (hmacKey, encKey []byte, newHash func() hash.Hash, tagLen int, err error) {
	var half int
	switch alg {
	case AEADA128CBCHS:
		half, newHash, tagLen = 16, sha256.New, 16
	case AEADA192CBCHS:
		half, newHash, tagLen = 24, sha512.New384, 24
	case AEADA256CBCHS:
		half, newHash, tagLen = 32, sha512.New, 32
	default:
		return nil, nil, nil, 0, vcerr.Usage("aead: unsupported algorithm %s", alg)
	}
	if len(key) != 2*half {
		return nil, nil, nil, 0, vcerr.Usage("aead: key length %d does not match %s", len(key), alg)
	}
	return key[:half], key[half:], newHash, tagLen, nil
}

// macCBCHS computes HMAC(hmacKey, AAD || IV || CT || AL) truncated to
// tagLen, where AL is the big-endian 64-bit bit-length of AAD.
func macCBCHS(newHash func() hash.Hash, hmacKey, aad, iv, ct []byte, tagLen int) []byte {
	mac := hmac.New(newHash, hmacKey)
	mac.Write(aad)
	mac.Write(iv)
	mac.Write(ct)
	al := make([]byte, 8)
	binary.BigEndian.PutUint64(al, uint64(len(aad))*8)
	mac.Write(al)
	full := mac.Sum(nil)
	return full[:tagLen]
}
