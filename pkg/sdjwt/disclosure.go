// Package sdjwt implements IETF SD-JWT VC's selective-disclosure
// algebra: disclosure construction, digest embedding under `_sd`/
// `_sd_alg`, disclosure/digest verification, and the key-binding JWT
// that proves possession of the holder key named in `cnf`. Only flat
// (top-level) disclosure is supported; nested object and array-element
// digests round-trip but are not produced.
package sdjwt

import (
	"crypto/rand"
	"sort"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

const (
	// CombinedFormatSeparator joins the SD-JWT, its disclosures, and an
	// optional key-binding JWT into one presentation string.
	CombinedFormatSeparator = "~"

	sdKey    = "_sd"
	sdAlgKey = "_sd_alg"
)

// Disclosure is one (salt, claim name, claim value) triple an issuer
// creates for each selectively disclosable claim. ArrayElement
// disclosures omit the claim name, per the SD-JWT array-element form.
type Disclosure struct {
	Salt    string
	Name    string // empty for array-element disclosures
	Value   interface{}
	Encoded string // base64url(JSON([salt, name?, value]))

	digestCache string // result of Digest(), keyed by digestAlg
	digestAlg   vckey.DigestAlg
}

// NewClaimDisclosure builds and base64url-encodes a name/value
// disclosure, generating a fresh 16-byte salt from crypto/rand.
func NewClaimDisclosure(name string, value interface{}) (*Disclosure, error) {
	return newDisclosure(name, value)
}

// NewArrayElementDisclosure builds a disclosure for one element of a
// selectively disclosable array; SD-JWT digests each element separately
// so a holder can reveal a subset of the array.
func NewArrayElementDisclosure(value interface{}) (*Disclosure, error) {
	return newDisclosure("", value)
}

func newDisclosure(name string, value interface{}) (*Disclosure, error) {
	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	var parts []interface{}
	if name != "" {
		parts = []interface{}{salt, name, value}
	} else {
		parts = []interface{}{salt, value}
	}

	b, err := codec.MarshalJSON(parts)
	if err != nil {
		return nil, err
	}

	return &Disclosure{
		Salt:    salt,
		Name:    name,
		Value:   value,
		Encoded: codec.B64URL(b),
	}, nil
}

func randomSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", vcerr.Usage("sdjwt: generate salt").Wrap(err)
	}
	return codec.B64URL(b), nil
}

// Digest hashes the disclosure's encoded form with alg, the value that
// goes into `_sd` (or an array element's "..." wrapper).
func (d *Disclosure) Digest(alg vckey.DigestAlg) (string, error) {
	if d.digestCache != "" && d.digestAlg == alg {
		return d.digestCache, nil
	}
	h, err := (vckey.Provider{}).Digest(alg, []byte(d.Encoded))
	if err != nil {
		return "", err
	}
	d.digestCache = codec.B64URL(h)
	d.digestAlg = alg
	return d.digestCache, nil
}

// ParseDisclosure decodes a combined-format disclosure segment back
// into its salt/name/value parts.
func ParseDisclosure(encoded string) (*Disclosure, error) {
	raw, err := codec.B64URLDecode(encoded)
	if err != nil {
		return nil, err
	}
	var parts []interface{}
	if err := codec.UnmarshalJSON(raw, &parts); err != nil {
		return nil, vcerr.Parse("sdjwt: invalid disclosure json").Wrap(err)
	}

	switch len(parts) {
	case 2:
		salt, ok := parts[0].(string)
		if !ok {
			return nil, vcerr.InvalidStructure("sdjwt: disclosure salt is not a string")
		}
		return &Disclosure{Salt: salt, Value: parts[1], Encoded: encoded}, nil
	case 3:
		salt, ok := parts[0].(string)
		if !ok {
			return nil, vcerr.InvalidStructure("sdjwt: disclosure salt is not a string")
		}
		name, ok := parts[1].(string)
		if !ok {
			return nil, vcerr.InvalidStructure("sdjwt: disclosure name is not a string")
		}
		return &Disclosure{Salt: salt, Name: name, Value: parts[2], Encoded: encoded}, nil
	default:
		return nil, vcerr.InvalidStructure("sdjwt: disclosure has %d parts, expected 2 or 3", len(parts))
	}
}

// SortDigests returns digests in ascending lexicographic order — SD-JWT
// doesn't require a canonical order, but a stable one makes issuance
// deterministic and easier to test.
func SortDigests(digests []string) []string {
	sorted := append([]string{}, digests...)
	sort.Strings(sorted)
	return sorted
}
