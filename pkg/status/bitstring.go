// Package status implements the two revocation mechanisms the engine
// supports: a bit-indexed BitstringStatusList credential (W3C Bitstring
// Status List) and the IETF Token Status List (JWT and COSE encodings).
// In the W3C list a set bit means revoked. The W3C list and the JWT
// form of the Token Status List travel gzip-compressed and
// base64url-encoded inside an issuer-signed envelope; the COSE form
// carries the packed bytes uncompressed.
package status

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"time"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/fetch"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Purpose names what a bit position in a status list means.
type Purpose string

const (
	PurposeRevocation Purpose = "revocation"
	PurposeSuspension Purpose = "suspension"
)

// ListCredentialSubject is the credentialSubject of a
// BitstringStatusListCredential (W3C Bitstring Status List).
type ListCredentialSubject struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	StatusPurpose Purpose `json:"statusPurpose"`
	EncodedList   string  `json:"encodedList"`
}

// ListCredential is the minimal shape of a status list credential's
// response this package needs: only credentialSubject matters for the
// revocation check, but the rest of the envelope is kept for callers
// that want to verify the credential's own signature first.
type ListCredential struct {
	ID                string                `json:"id"`
	Issuer            string                `json:"issuer"`
	Type              []string              `json:"type"`
	ValidFrom         string                `json:"validFrom,omitempty"`
	ValidUntil        string                `json:"validUntil,omitempty"`
	CredentialSubject ListCredentialSubject `json:"credentialSubject"`
	Proof             codec.ClaimSet        `json:"proof,omitempty"`
}

// ListCredentialResponse wraps ListCredential the way a status endpoint
// serves it.
type ListCredentialResponse struct {
	Data ListCredential `json:"data"`
}

// DefaultListLength is the bit length of a freshly issued revocation
// list (2^17 entries), large enough that the compressed form does not
// leak the issued-credential count.
const DefaultListLength = 1 << 17

// NewList allocates an all-clear bit array of DefaultListLength.
func NewList() []bool { return make([]bool, DefaultListLength) }

// BuildList gzip-compresses and base64url-encodes a bitstring where bit
// i (LSB-first within each byte) is set when credential i is revoked.
func BuildList(bits []bool) (string, error) {
	numBytes := (len(bits) + 7) / 8
	raw := make([]byte, numBytes)
	for i, set := range bits {
		if set {
			raw[i/8] |= 1 << uint(i%8)
		}
	}
	return CompressToBase64URL(raw)
}

// IsRevoked checks whether position is set in subject's encoded list.
func IsRevoked(position int, subject ListCredentialSubject) (bool, error) {
	if subject.StatusPurpose != PurposeRevocation {
		return false, nil
	}

	raw, err := DecompressFromBase64URL(subject.EncodedList)
	if err != nil {
		return false, err
	}

	byteIndex, bitIndex := position/8, position%8
	if position < 0 || byteIndex >= len(raw) {
		// A position beyond the issued list length has never been
		// assigned, so it cannot have been revoked.
		return false, nil
	}
	return (raw[byteIndex]>>uint(bitIndex))&1 == 1, nil
}

// Client fetches and checks a remote status list credential.
type Client struct {
	fetch *fetch.Client
}

// NewClient constructs a status list client with sensible defaults.
func NewClient() *Client {
	return &Client{fetch: fetch.New(fetch.WithTimeout(10 * time.Second))}
}

// FetchAndCheckRevocation fetches the status list credential at url and
// reports whether position is revoked.
func (c *Client) FetchAndCheckRevocation(ctx context.Context, url string, position int) (bool, error) {
	resp, err := c.Fetch(ctx, url)
	if err != nil {
		return false, err
	}
	return IsRevoked(position, resp.Data.CredentialSubject)
}

// Fetch retrieves and parses the status list credential at url.
func (c *Client) Fetch(ctx context.Context, url string) (*ListCredentialResponse, error) {
	if url == "" {
		return nil, vcerr.Usage("status: statusListCredential url is empty")
	}

	body, err := c.fetch.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var result ListCredentialResponse
	if err := codec.UnmarshalJSON(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Compress/Decompress/CompressToBase64URL/DecompressFromBase64URL hold
// the gzip and base64url halves of the encodedList wire format.
// RawURLEncoding (unpadded) matches the JWT ecosystem's convention
// elsewhere in this module.

func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, vcerr.Usage("status: gzip write").Wrap(err)
	}
	if err := gz.Close(); err != nil {
		return nil, vcerr.Usage("status: gzip close").Wrap(err)
	}
	return buf.Bytes(), nil
}

func Decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, vcerr.Parse("status: invalid gzip stream").Wrap(err)
	}
	defer gz.Close()
	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, vcerr.Parse("status: gzip read").Wrap(err)
	}
	return out, nil
}

func CompressToBase64URL(data []byte) (string, error) {
	compressed, err := Compress(data)
	if err != nil {
		return "", err
	}
	return codec.B64URL(compressed), nil
}

func DecompressFromBase64URL(s string) ([]byte, error) {
	compressed, err := codec.B64URLDecode(s)
	if err != nil {
		return nil, err
	}
	return Decompress(compressed)
}
