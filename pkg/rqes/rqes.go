// Package rqes carries the remote-qualified-electronic-signature DTOs a
// verifier exchanges with a wallet when an OpenID4VP transaction also
// authorizes a document signature: the signature-request parameters and
// the per-document digests they commit to. These are pure data-transfer
// shapes; computing or validating the actual signatures is out of this
// package's scope.
package rqes

import (
	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// SignatureQualifier names the legal signature level requested.
type SignatureQualifier string

const (
	QualifierEUEidasQES SignatureQualifier = "eu_eidas_qes"
	QualifierEUEidasAES SignatureQualifier = "eu_eidas_aes"
)

// SignatureFormat names the container format of the requested signature.
type SignatureFormat string

const (
	FormatCAdES SignatureFormat = "C" // CMS advanced electronic signature
	FormatXAdES SignatureFormat = "X"
	FormatPAdES SignatureFormat = "P"
	FormatJAdES SignatureFormat = "J"
)

// ConformanceLevel selects the baseline profile of the chosen format.
type ConformanceLevel string

const (
	LevelAdESB_B  ConformanceLevel = "AdES-B-B"
	LevelAdESB_T  ConformanceLevel = "AdES-B-T"
	LevelAdESB_LT ConformanceLevel = "AdES-B-LT"
)

// DocumentDigest is one document's hash the wallet is asked to sign,
// identified to the user by Label.
type DocumentDigest struct {
	Hash  string `json:"hash"` // base64url
	Label string `json:"label"`
}

// DocumentLocation tells the wallet where the full document referenced
// by the digest at the same index can be retrieved, with an access-mode
// hint (e.g. "OTP", "None") for the retrieval.
type DocumentLocation struct {
	URI    string         `json:"uri"`
	Method codec.ClaimSet `json:"method,omitempty"`
}

// SignatureRequestParameters is the transaction-data payload attached
// to an authorization request that also asks for document signatures.
type SignatureRequestParameters struct {
	Type                string               `json:"type"`
	CredentialID        string               `json:"credentialID,omitempty"`
	SignatureQualifier  SignatureQualifier   `json:"signatureQualifier,omitempty"`
	DocumentDigests     []DocumentDigest     `json:"documentDigests"`
	DocumentLocations   []DocumentLocation   `json:"documentLocations,omitempty"`
	HashAlgorithmOID    string               `json:"hashAlgorithmOID"`
	SignatureFormat     SignatureFormat      `json:"signatureFormat,omitempty"`
	ConformanceLevel    ConformanceLevel     `json:"conformanceLevel,omitempty"`
	ClientData          string               `json:"clientData,omitempty"`
}

// oidFor maps this module's digest algorithms to their OIDs.
var oidFor = map[vckey.DigestAlg]string{
	vckey.DigestSHA256: "2.16.840.1.101.3.4.2.1",
	vckey.DigestSHA384: "2.16.840.1.101.3.4.2.2",
	vckey.DigestSHA512: "2.16.840.1.101.3.4.2.3",
}

// NewSignatureRequest digests each document with alg and assembles the
// request parameters, one DocumentDigest per (label, content) pair.
func NewSignatureRequest(alg vckey.DigestAlg, qualifier SignatureQualifier, docs map[string][]byte) (*SignatureRequestParameters, error) {
	oid, ok := oidFor[alg]
	if !ok {
		return nil, vcerr.Usage("rqes: no OID for digest algorithm %s", alg)
	}
	params := &SignatureRequestParameters{
		Type:               "qes_authorization",
		SignatureQualifier: qualifier,
		HashAlgorithmOID:   oid,
	}
	provider := vckey.Provider{}
	for label, content := range docs {
		h, err := provider.Digest(alg, content)
		if err != nil {
			return nil, err
		}
		params.DocumentDigests = append(params.DocumentDigests, DocumentDigest{
			Hash:  codec.B64URL(h),
			Label: label,
		})
	}
	return params, nil
}

// Validate checks the structural invariants a wallet relies on before
// showing the request to a user.
func (p *SignatureRequestParameters) Validate() error {
	if len(p.DocumentDigests) == 0 {
		return vcerr.InvalidStructure("rqes: documentDigests must not be empty")
	}
	if p.HashAlgorithmOID == "" {
		return vcerr.InvalidStructure("rqes: hashAlgorithmOID is required")
	}
	if len(p.DocumentLocations) > 0 && len(p.DocumentLocations) != len(p.DocumentDigests) {
		return vcerr.InvalidStructure("rqes: documentLocations must pair 1:1 with documentDigests")
	}
	for i, d := range p.DocumentDigests {
		if d.Hash == "" {
			return vcerr.InvalidStructure("rqes: documentDigests[%d] has an empty hash", i)
		}
		if _, err := codec.B64URLDecode(d.Hash); err != nil {
			return vcerr.Parse("rqes: documentDigests[%d] hash is not base64url", i).Wrap(err)
		}
	}
	return nil
}
