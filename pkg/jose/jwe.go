package jose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strings"

	josecipher "github.com/go-jose/go-jose/v3/cipher"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// JWE is a parsed compact JSON Web Encryption message (RFC 7516), kept
// in its five decoded segments.
type JWE struct {
	Protected    Header
	EncryptedKey []byte // empty for direct-agreement ECDH-ES
	IV           []byte
	Ciphertext   []byte
	Tag          []byte
}

// EncryptECDHES builds a compact JWE using ECDH-ES direct key agreement
// (RFC 7518 section 4.6): a fresh ephemeral key is generated, its shared
// secret with the recipient's public key is run through Concat KDF
// (RFC 7518 section 4.6, via go-jose's cipher subpackage) to derive the
// content encryption key directly — no key-wrapping step, since direct
// agreement is the only ECDH-ES mode the response encryption needs.
func (e *Engine) EncryptECDHES(recipientPub *ecdsa.PublicKey, enc vckey.AEADAlg, apu, apv []byte, plaintext []byte, extraHeaders Header) (string, error) {
	ephemeral, err := e.crypto.GenerateEphemeral(recipientPub.Curve)
	if err != nil {
		return "", err
	}

	secret, err := e.crypto.ECDH(ephemeral, recipientPub)
	if err != nil {
		return "", err
	}

	crv, err := vckey.ECDHCurveName(recipientPub.Curve)
	if err != nil {
		return "", err
	}

	header := Header{"alg": "ECDH-ES", "enc": string(enc)}
	for k, v := range extraHeaders {
		header[k] = v
	}
	header["epk"] = map[string]interface{}{
		"kty": "EC",
		"crv": crv,
		"x":   codec.B64URL(ephemeral.X.Bytes()),
		"y":   codec.B64URL(ephemeral.Y.Bytes()),
	}
	if len(apu) > 0 {
		header["apu"] = codec.B64URL(apu)
	}
	if len(apv) > 0 {
		header["apv"] = codec.B64URL(apv)
	}

	headerJSON, err := codec.MarshalJSON(header)
	if err != nil {
		return "", err
	}
	headerB64 := codec.B64URL(headerJSON)

	keyLen, ivLen := keySizeFor(enc)
	cek := concatKDF(secret, string(enc), apu, apv, keyLen)

	iv := make([]byte, ivLen)
	if _, err := readRandom(iv); err != nil {
		return "", err
	}

	aad := []byte(headerB64)
	ct, tag, err := e.crypto.AEADSeal(enc, cek, iv, aad, plaintext)
	if err != nil {
		return "", err
	}

	return headerB64 + "." + "." + codec.B64URL(iv) + "." + codec.B64URL(ct) + "." + codec.B64URL(tag), nil
}

// DecryptECDHES is the inverse of EncryptECDHES, using km's private key
// to re-derive the ECDH-ES shared secret from the sender's ephemeral
// public key carried in the "epk" header.
func (e *Engine) DecryptECDHES(km *vckey.KeyMaterial, token string) ([]byte, Header, error) {
	parts, err := splitJWE(token)
	if err != nil {
		return nil, nil, err
	}

	headerRaw, err := codec.B64URLDecode(parts[0])
	if err != nil {
		return nil, nil, err
	}
	var header Header
	if err := codec.UnmarshalJSON(headerRaw, &header); err != nil {
		return nil, nil, err
	}
	if alg, _ := header["alg"].(string); alg != "ECDH-ES" {
		return nil, nil, vcerr.InvalidStructure("jwe: unsupported alg %v, expected ECDH-ES", header["alg"])
	}
	encName, _ := header["enc"].(string)
	if encName == "" {
		return nil, nil, vcerr.InvalidStructure("jwe: missing enc header")
	}
	enc := vckey.AEADAlg(encName)

	epkPub, err := epkFromHeader(header)
	if err != nil {
		return nil, nil, err
	}

	priv, ok := km.PrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return nil, nil, vcerr.Usage("jwe: ECDH-ES requires an ecdsa key material")
	}
	secret, err := e.crypto.ECDH(priv, epkPub)
	if err != nil {
		return nil, nil, err
	}

	apu, apv := headerB64Bytes(header, "apu"), headerB64Bytes(header, "apv")
	keyLen, _ := keySizeFor(enc)
	cek := concatKDF(secret, string(enc), apu, apv, keyLen)

	iv, err := codec.B64URLDecode(parts[2])
	if err != nil {
		return nil, nil, err
	}
	ct, err := codec.B64URLDecode(parts[3])
	if err != nil {
		return nil, nil, err
	}
	tag, err := codec.B64URLDecode(parts[4])
	if err != nil {
		return nil, nil, err
	}

	pt, err := e.crypto.AEADOpen(enc, cek, iv, []byte(parts[0]), ct, tag)
	if err != nil {
		return nil, nil, err
	}
	return pt, header, nil
}

func splitJWE(token string) ([]string, error) {
	parts := splitCompact(token, 5)
	if parts == nil {
		return nil, vcerr.Parse("jwe: expected 5 segments")
	}
	return parts, nil
}

func epkFromHeader(header Header) (*ecdsa.PublicKey, error) {
	epkRaw, ok := header["epk"].(map[string]interface{})
	if !ok {
		return nil, vcerr.InvalidStructure("jwe: missing epk header")
	}
	crvName, _ := epkRaw["crv"].(string)
	curve, err := vckey.CurveFor(crvName)
	if err != nil {
		return nil, err
	}
	xStr, _ := epkRaw["x"].(string)
	yStr, _ := epkRaw["y"].(string)
	xBytes, err := codec.B64URLDecode(xStr)
	if err != nil {
		return nil, err
	}
	yBytes, err := codec.B64URLDecode(yStr)
	if err != nil {
		return nil, err
	}
	x, y := bytesToBigInt(xBytes), bytesToBigInt(yBytes)
	if !curve.IsOnCurve(x, y) {
		return nil, vcerr.InvalidStructure("jwe: epk is not on the declared curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func headerB64Bytes(header Header, field string) []byte {
	s, _ := header[field].(string)
	if s == "" {
		return nil
	}
	b, _ := codec.B64URLDecode(s)
	return b
}

// concatKDF derives keyLen content-encryption-key bytes per RFC 7518
// section 4.6, via go-jose's NewConcatKDF.
func concatKDF(secret []byte, alg string, apu, apv []byte, keyLen int) []byte {
	supPubInfo := make([]byte, 4)
	binary.BigEndian.PutUint32(supPubInfo, uint32(keyLen)*8)

	kdf := josecipher.NewConcatKDF(crypto.SHA256, secret,
		lengthPrefixed([]byte(alg)), lengthPrefixed(apu), lengthPrefixed(apv),
		supPubInfo, []byte{})
	key := make([]byte, keyLen)
	if _, err := kdf.Read(key); err != nil {
		panic("jose: concat kdf read failed: " + err.Error()) // entropy-free derivation; only fails on programmer error
	}
	return key
}

// lengthPrefixed frames data as ConcatKDF's OtherInfo fields require: a
// 32-bit big-endian length followed by the bytes themselves (RFC 7518
// section 4.6).
func lengthPrefixed(data []byte) []byte {
	out := make([]byte, len(data)+4)
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}

func keySizeFor(enc vckey.AEADAlg) (keyLen, ivLen int) {
	switch enc {
	case vckey.AEADA128GCM:
		return 16, 12
	case vckey.AEADA192GCM:
		return 24, 12
	case vckey.AEADA256GCM:
		return 32, 12
	case vckey.AEADA128CBCHS:
		return 32, 16
	case vckey.AEADA192CBCHS:
		return 48, 16
	case vckey.AEADA256CBCHS:
		return 64, 16
	default:
		return 32, 12
	}
}

func bytesToBigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func readRandom(b []byte) (int, error) {
	return rand.Read(b)
}

// splitCompact splits a compact serialization into exactly n segments,
// tolerating empty segments (JWE's encrypted-key position is empty for
// direct-agreement ECDH-ES).
func splitCompact(token string, n int) []string {
	parts := strings.Split(token, ".")
	if len(parts) != n {
		return nil
	}
	return parts
}
