package openid4vp

import (
	"crypto/x509"
	"encoding/base64"

	josejwk "github.com/go-jose/go-jose/v3"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// RequestObjectVerifyOptions configures the holder-side trust decisions
// VerifyRequestObject makes per client-id scheme.
type RequestObjectVerifyOptions struct {
	// Resolver resolves the verifier's signing key for the
	// pre-registered scheme, where trust was established out of band.
	Resolver jose.KeyResolver
	// AttestationResolver resolves the attestation issuer's key for the
	// verifier_attestation scheme; nil accepts the attestation without
	// checking its own signature (the caller then relies solely on the
	// cnf.jwk binding).
	AttestationResolver jose.KeyResolver
	// Roots anchors x509_san_dns chain validation; nil trusts the leaf
	// as presented (self-signed verifier certificates).
	Roots *x509.CertPool
}

// VerifyRequestObject verifies a signed JAR a holder fetched from
// request_uri (or received by value) and returns its parameters. The
// trust path depends on the request's client_id_scheme: an
// x509_san_dns request verifies against the x5c leaf and additionally
// requires a SAN dNSName equal to client_id; a verifier_attestation
// request verifies against the cnf.jwk of the attestation JWT carried
// in the header and requires the attestation's sub to equal client_id.
func VerifyRequestObject(e *jose.Engine, jar string, opts RequestObjectVerifyOptions) (*AuthenticationRequestParameters, error) {
	parsed, err := jose.Parse(jar)
	if err != nil {
		return nil, err
	}

	var params AuthenticationRequestParameters
	if err := codec.UnmarshalJSON(parsed.Payload, &params); err != nil {
		return nil, vcerr.Parse("openid4vp: invalid request object payload").Wrap(err)
	}

	switch params.ClientIDScheme {
	case SchemeCertificateSanDNS:
		leaf, err := verifyAgainstX5C(e, jar, parsed.Protected, opts.Roots)
		if err != nil {
			return nil, err
		}
		if !leafHasDNSName(leaf, params.ClientID) {
			return nil, vcerr.InvalidStructure("openid4vp: request object leaf certificate SAN does not contain client_id %q", params.ClientID)
		}
	case SchemeVerifierAttestation:
		if err := verifyAgainstAttestation(e, jar, parsed.Protected, params.ClientID, opts.AttestationResolver); err != nil {
			return nil, err
		}
	default:
		resolver := opts.Resolver
		if resolver == nil {
			resolver = jose.EmbeddedJWKResolver{}
		}
		if _, err := e.Verify(jar, resolver); err != nil {
			return nil, err
		}
	}

	return &params, nil
}

// verifyAgainstX5C checks the JAR signature against the x5c leaf and
// returns the leaf certificate for the caller's SAN check.
func verifyAgainstX5C(e *jose.Engine, jar string, header jose.Header, roots *x509.CertPool) (*x509.Certificate, error) {
	certs, err := certsFromHeader(header)
	if err != nil {
		return nil, err
	}
	if roots != nil {
		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}
		if _, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates}); err != nil {
			return nil, vcerr.UnknownKey("openid4vp: request object x5c chain is untrusted").Wrap(err)
		}
	}
	if _, err := e.Verify(jar, jose.StaticResolver{Key: certs[0].PublicKey}); err != nil {
		return nil, err
	}
	return certs[0], nil
}

func certsFromHeader(header jose.Header) ([]*x509.Certificate, error) {
	raw, ok := header["x5c"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, vcerr.UnknownKey("openid4vp: request object has no x5c header")
	}
	certs := make([]*x509.Certificate, 0, len(raw))
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok {
			return nil, vcerr.Parse("openid4vp: x5c entry is not a string")
		}
		// Standard base64 per RFC 7515 section 4.1.6, with a base64url
		// fallback for senders that reuse the JOSE alphabet.
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			der, err = codec.B64URLDecode(s)
			if err != nil {
				return nil, vcerr.Parse("openid4vp: invalid x5c entry").Wrap(err)
			}
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, vcerr.Parse("openid4vp: invalid x5c certificate").Wrap(err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func leafHasDNSName(leaf *x509.Certificate, name string) bool {
	for _, dns := range leaf.DNSNames {
		if dns == name {
			return true
		}
	}
	return false
}

// verifyAgainstAttestation implements the verifier_attestation trust
// path: the attestation JWT rides in the JAR header's "jwt" field, its
// sub must equal the request's client_id, and its cnf.jwk is the key
// the JAR signature must verify under.
func verifyAgainstAttestation(e *jose.Engine, jar string, header jose.Header, clientID string, attestationResolver jose.KeyResolver) error {
	attJWT, _ := header["jwt"].(string)
	if attJWT == "" {
		return vcerr.InvalidStructure("openid4vp: verifier_attestation request object has no jwt header")
	}

	var attPayload codec.ClaimSet
	if attestationResolver != nil {
		verified, err := e.Verify(attJWT, attestationResolver)
		if err != nil {
			return err
		}
		if err := codec.UnmarshalJSON(verified.Payload, &attPayload); err != nil {
			return vcerr.Parse("openid4vp: invalid attestation payload").Wrap(err)
		}
	} else {
		parsedAtt, err := jose.Parse(attJWT)
		if err != nil {
			return err
		}
		if err := codec.UnmarshalJSON(parsedAtt.Payload, &attPayload); err != nil {
			return vcerr.Parse("openid4vp: invalid attestation payload").Wrap(err)
		}
	}

	sub, _ := attPayload["sub"].(string)
	if sub != clientID {
		return vcerr.InvalidStructure("openid4vp: attestation sub does not equal client_id")
	}

	cnfRaw, ok := attPayload["cnf"].(map[string]interface{})
	if !ok {
		return vcerr.InvalidStructure("openid4vp: attestation has no cnf claim")
	}
	jwkRaw, ok := cnfRaw["jwk"]
	if !ok {
		return vcerr.InvalidStructure("openid4vp: attestation cnf has no jwk")
	}
	b, err := codec.MarshalJSON(jwkRaw)
	if err != nil {
		return err
	}
	var jwk josejwk.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return vcerr.Parse("openid4vp: invalid attestation cnf.jwk").Wrap(err)
	}

	_, err = e.Verify(jar, jose.StaticResolver{Key: jwk.Key})
	return err
}
