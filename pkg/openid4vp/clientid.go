package openid4vp

import "github.com/pilacorp/vc-engine/pkg/vcerr"

// Scheme identifies one of the four supported client-identifier
// schemes.
type Scheme string

const (
	SchemePreRegistered       Scheme = "pre-registered"
	SchemeRedirectURI         Scheme = "redirect_uri"
	SchemeCertificateSanDNS   Scheme = "x509_san_dns"
	SchemeVerifierAttestation Scheme = "verifier_attestation"
)

// ClientID is the tagged-variant client-identifier value a verifier
// picks at request-construction time. Only the fields relevant to its
// Scheme are populated; use the constructors below rather than building
// one by hand.
type ClientID struct {
	Scheme Scheme
	ID     string

	IssuerURI string // PreRegistered only: optional issuer metadata URI

	X509Chain [][]byte // CertificateSanDNS only: leaf-first DER chain

	AttestationJWT string // VerifierAttestation only
}

// PreRegistered builds a client_id the holder already trusts out of
// band, with an optional issuer metadata URI.
func PreRegistered(clientID, issuerURI string) ClientID {
	return ClientID{Scheme: SchemePreRegistered, ID: clientID, IssuerURI: issuerURI}
}

// RedirectURI builds a client_id equal to the unsigned request's own
// redirect_uri, the only scheme Query mode permits without a pre-shared
// trust relationship.
func RedirectURI(clientID string) ClientID {
	return ClientID{Scheme: SchemeRedirectURI, ID: clientID}
}

// CertificateSanDNS builds a client_id that must equal the leaf
// certificate's SAN dNSName entry; requests using it MUST be signed and
// MUST NOT carry redirect_uri.
func CertificateSanDNS(clientID string, chain [][]byte) ClientID {
	return ClientID{Scheme: SchemeCertificateSanDNS, ID: clientID, X509Chain: chain}
}

// VerifierAttestation builds a client_id backed by a third-party
// attestation JWT whose sub claim equals clientID; the attestation is
// carried in the signed request's JWS header "jwt" field.
func VerifierAttestation(attestationJWT, clientID string) ClientID {
	return ClientID{Scheme: SchemeVerifierAttestation, ID: clientID, AttestationJWT: attestationJWT}
}

// RequiresSignedRequest reports whether this scheme forbids an unsigned
// (Query) request.
func (c ClientID) RequiresSignedRequest() bool {
	return c.Scheme == SchemeCertificateSanDNS || c.Scheme == SchemeVerifierAttestation
}

// ForbidsRedirectURI reports whether this scheme forbids carrying a
// separate redirect_uri parameter.
func (c ClientID) ForbidsRedirectURI() bool {
	return c.Scheme == SchemeCertificateSanDNS
}

func (c ClientID) validate() error {
	if c.ID == "" {
		return vcerr.Usage("openid4vp: client_id must not be empty")
	}
	switch c.Scheme {
	case SchemeCertificateSanDNS:
		if len(c.X509Chain) == 0 {
			return vcerr.Usage("openid4vp: x509_san_dns client_id requires a certificate chain")
		}
	case SchemeVerifierAttestation:
		if c.AttestationJWT == "" {
			return vcerr.Usage("openid4vp: verifier_attestation client_id requires an attestation jwt")
		}
	case SchemePreRegistered, SchemeRedirectURI:
	default:
		return vcerr.Usage("openid4vp: unknown client_id scheme %q", c.Scheme)
	}
	return nil
}
