package vckey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Digest hashes data with the algorithm named by alg.
func (Provider) Digest(alg DigestAlg, data []byte) ([]byte, error) {
	switch alg {
	case DigestSHA256, "":
		h := sha256.Sum256(data)
		return h[:], nil
	case DigestSHA384:
		h := sha512.Sum384(data)
		return h[:], nil
	case DigestSHA512:
		h := sha512.Sum512(data)
		return h[:], nil
	default:
		return nil, vcerr.Usage("digest: unsupported algorithm %s", alg)
	}
}

// Random returns n cryptographically secure random bytes.
func (Provider) Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, vcerr.Usage("random: entropy source failed").Wrap(err)
	}
	return b, nil
}

// pkcs7Pad/pkcs7Unpad implement the PKCS#7 padding AES-CBC requires; JWE's
// CBC-HS algorithms mandate it (RFC 7518 section 5.2.2).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, vcerr.Parse("pkcs7: empty input")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, vcerr.Parse("pkcs7: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, vcerr.Parse("pkcs7: invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
