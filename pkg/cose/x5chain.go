package cose

import (
	"crypto/x509"

	gocose "github.com/veraison/go-cose"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// X5Chain extracts and parses the unprotected x5chain header; the
// header value may be a single DER blob or a slice of them depending on
// chain length.
func X5Chain(msg *gocose.UntaggedSign1Message) ([]*x509.Certificate, error) {
	raw, ok := msg.Headers.Unprotected[gocose.HeaderLabelX5Chain]
	if !ok {
		return nil, vcerr.UnknownKey("cose: no x5chain in unprotected header")
	}

	var der [][]byte
	switch v := raw.(type) {
	case [][]byte:
		der = v
	case []byte:
		der = [][]byte{v}
	default:
		return nil, vcerr.InvalidStructure("cose: unexpected x5chain type %T", raw)
	}

	certs := make([]*x509.Certificate, 0, len(der))
	for _, d := range der {
		cert, err := x509.ParseCertificate(d)
		if err != nil {
			return nil, vcerr.Parse("cose: invalid x5chain certificate").Wrap(err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// DocumentSigningKey returns the leaf certificate's public key, the
// document signing key mdoc verification checks IssuerAuth against.
func DocumentSigningKey(msg *gocose.UntaggedSign1Message) (interface{}, error) {
	certs, err := X5Chain(msg)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, vcerr.UnknownKey("cose: empty x5chain")
	}
	return certs[0].PublicKey, nil
}
