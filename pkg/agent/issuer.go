// Package agent composes the engines built elsewhere in this module
// into the three protocol roles: Issuer, Holder, and Verifier. Each
// role owns exactly one KeyMaterial and exclusively calls the engines
// for its side of a credential's lifecycle — issuance,
// storage/presentation, and verification/status checking.
package agent

import (
	"time"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/vckey"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
)

// Issuer signs credentials in any of the three representations from
// one set of contents.
type Issuer struct {
	km  *vckey.KeyMaterial
	jws *jose.Engine
}

// NewIssuer constructs an Issuer bound to km (role must be RoleIssuer).
func NewIssuer(km *vckey.KeyMaterial, jws *jose.Engine) *Issuer {
	return &Issuer{km: km, jws: jws}
}

// KeyMaterial exposes the issuer's signing key, e.g. for publishing a
// JWK set or a self-signed certificate.
func (i *Issuer) KeyMaterial() *vckey.KeyMaterial { return i.km }

// IssueVCJWT signs contents as a compact VC-JWT (pkg/vcjwt). A
// credential that names a credentialSchema is validated against it
// before signing; issuing an instance that contradicts its own schema
// is a caller error, not something to leave to verifiers.
func (i *Issuer) IssueVCJWT(contents vcjwt.CredentialContents) (string, error) {
	if contents.CredentialSchema != nil {
		vc, err := codec.ToClaimSet(contents)
		if err != nil {
			return "", err
		}
		if err := vcjwt.ValidateAgainstSchema(vc); err != nil {
			return "", err
		}
	}
	return vcjwt.Build(i.jws, i.km, contents)
}

// SDJWTInput is everything IssueSDJWT needs: the always-disclosed and
// selectively-disclosable claims, the holder's binding key, and the
// registered claims VC-JWT also carries.
type SDJWTInput struct {
	Issuer          string
	Subject         string
	ID              string
	Type            []string
	ValidFrom       time.Time
	ValidUntil      time.Time
	AlwaysDisclosed codec.ClaimSet
	Selective       []sdjwt.Selective
	HolderKey       *vckey.KeyMaterial
	DigestAlg       vckey.DigestAlg
}

// IssuedSDJWT is an SD-JWT credential in its issuance combined format
// (no key-binding JWT yet) plus the disclosures the holder needs
// out-of-band to build future presentations.
type IssuedSDJWT struct {
	Combined    string
	Disclosures []*sdjwt.Disclosure
}

// IssueSDJWT builds and signs an SD-JWT VC: the holder's `cnf.jwk` binds
// the credential to HolderKey so only that key's key-binding JWT can
// later present it.
func (i *Issuer) IssueSDJWT(in SDJWTInput) (*IssuedSDJWT, error) {
	digestAlg := in.DigestAlg
	if digestAlg == "" {
		digestAlg = vckey.DigestSHA256
	}

	claims, disclosures, err := sdjwt.BuildClaims(in.AlwaysDisclosed, in.Selective, digestAlg)
	if err != nil {
		return nil, err
	}

	if in.Issuer != "" {
		claims["iss"] = in.Issuer
	}
	if in.Subject != "" {
		claims["sub"] = in.Subject
	}
	if in.ID != "" {
		claims["jti"] = in.ID
	}
	if len(in.Type) > 0 {
		claims["type"] = in.Type
	}
	if !in.ValidFrom.IsZero() {
		claims["iat"] = in.ValidFrom.Unix()
		claims["nbf"] = in.ValidFrom.Unix()
	}
	if !in.ValidUntil.IsZero() {
		claims["exp"] = in.ValidUntil.Unix()
	}
	if in.HolderKey != nil {
		claims["cnf"] = codec.ClaimSet{"jwk": in.HolderKey.JWK()}
	}

	payload, err := codec.MarshalJSON(claims)
	if err != nil {
		return nil, err
	}
	sdJWT, err := i.jws.Sign(i.km, payload, jose.Header{"typ": "vc+sd-jwt"})
	if err != nil {
		return nil, err
	}

	return &IssuedSDJWT{Combined: sdjwt.Combine(sdJWT, disclosures), Disclosures: disclosures}, nil
}

// IssueMdoc builds and signs an mdoc IssuerSigned document bound to the
// holder's device key (ISO 18013-5 issuer data authentication).
func (i *Issuer) IssueMdoc(input mdoc.IssueInput) (*mdoc.IssuerSigned, error) {
	return mdoc.Issue(i.km, input)
}
