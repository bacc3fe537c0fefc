// Package vcjwt implements W3C Verifiable Credentials as compact JWS
// (VC-JWT): the credential is carried under the "vc" claim, the
// registered JWT claims (iss/sub/jti/nbf/exp) mirror its
// issuer/subject/id/validity fields, and the envelope is signed with
// pkg/jose.
package vcjwt

import (
	"time"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// CredentialContents is the W3C VC Data Model content an issuer signs,
// independent of its JWT envelope.
type CredentialContents struct {
	Context           []interface{}   `json:"@context"`
	ID                string          `json:"id,omitempty"`
	Type              []string        `json:"type"`
	Issuer            string          `json:"issuer"`
	ValidFrom         time.Time       `json:"validFrom,omitempty"`
	ValidUntil        time.Time       `json:"validUntil,omitempty"`
	CredentialSubject codec.ClaimSet  `json:"credentialSubject"`
	CredentialStatus  codec.ClaimSet  `json:"credentialStatus,omitempty"`
	CredentialSchema  codec.ClaimSet  `json:"credentialSchema,omitempty"`
}

// Build signs contents as a VC-JWT: the credential goes under the "vc"
// claim, and iss/sub/jti/nbf/iat/exp are populated from the
// credential's issuer/subject/id/validity window so the two layers can
// never disagree.
func Build(engine *jose.Engine, km *vckey.KeyMaterial, contents CredentialContents) (string, error) {
	vc, err := codec.ToClaimSet(contents)
	if err != nil {
		return "", err
	}

	payload := codec.ClaimSet{"vc": vc}
	if contents.Issuer != "" {
		payload["iss"] = contents.Issuer
	}
	if sub, ok := contents.CredentialSubject["id"].(string); ok && sub != "" {
		payload["sub"] = sub
	}
	if contents.ID != "" {
		payload["jti"] = contents.ID
	}
	if !contents.ValidFrom.IsZero() {
		payload["iat"] = contents.ValidFrom.Unix()
		payload["nbf"] = contents.ValidFrom.Unix()
	}
	if !contents.ValidUntil.IsZero() {
		payload["exp"] = contents.ValidUntil.Unix()
	}

	payloadJSON, err := codec.MarshalJSON(payload)
	if err != nil {
		return "", err
	}
	return engine.Sign(km, payloadJSON, nil)
}

// Parsed is a VC-JWT split into its registered claims and embedded
// credential, before signature verification.
type Parsed struct {
	JWS        *jose.JWS
	Credential codec.ClaimSet
	Issuer     string
	Subject    string
	ID         string
	NotBefore  timeutil.NumericDate
	Expiry     timeutil.NumericDate
}

// Parse splits a VC-JWT without verifying its signature, applying only
// the structural checks (a "vc" claim must exist and be a JSON
// object).
func Parse(token string) (*Parsed, error) {
	jws, err := jose.Parse(token)
	if err != nil {
		return nil, err
	}

	var payload codec.ClaimSet
	if err := codec.UnmarshalJSON(jws.Payload, &payload); err != nil {
		return nil, err
	}

	vcRaw, ok := payload["vc"]
	if !ok {
		return nil, vcerr.InvalidStructure("vcjwt: vc claim not found in jwt payload")
	}
	vcMap, ok := vcRaw.(map[string]interface{})
	if !ok {
		return nil, vcerr.InvalidStructure("vcjwt: vc claim is not a json object")
	}

	p := &Parsed{JWS: jws, Credential: vcMap}
	p.Issuer, _ = payload["iss"].(string)
	p.Subject, _ = payload["sub"].(string)
	p.ID, _ = payload["jti"].(string)
	p.NotBefore = numericDateFrom(payload["nbf"])
	p.Expiry = numericDateFrom(payload["exp"])
	return p, nil
}

func numericDateFrom(v interface{}) timeutil.NumericDate {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return timeutil.NumericDate(int64(f))
}

// Verify parses token, verifies its signature with resolver, and checks
// nbf/exp against now within leeway. It does not check revocation
// status — that is pkg/status's concern, composed by pkg/agent.
func Verify(engine *jose.Engine, token string, resolver jose.KeyResolver, clock timeutil.TimeProvider, leeway time.Duration) (*Parsed, error) {
	p, err := Parse(token)
	if err != nil {
		return nil, err
	}

	if _, err := engine.Verify(token, resolver); err != nil {
		return nil, err
	}

	if err := p.checkClaimMirror(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = timeutil.WallClock
	}
	if !timeutil.WithinLeeway(clock.Now(), p.NotBefore, p.Expiry, leeway) {
		return nil, vcerr.Expired("vcjwt: credential is not yet valid or has expired")
	}

	return p, nil
}

// checkClaimMirror enforces the registered-claim/credential-field
// mirroring VC-JWT requires: iss==vc.issuer, jti==vc.id,
// sub==credentialSubject.id, and nbf/exp matching the validity window
// when the credential carries one.
func (p *Parsed) checkClaimMirror() error {
	if issuer, ok := p.Credential["issuer"].(string); ok && issuer != p.Issuer {
		return vcerr.InvalidStructure("vcjwt: iss does not equal vc.issuer")
	}
	if id, ok := p.Credential["id"].(string); ok && id != p.ID {
		return vcerr.InvalidStructure("vcjwt: jti does not equal vc.id")
	}
	if subject, ok := p.Credential["credentialSubject"].(map[string]interface{}); ok {
		if subID, ok := subject["id"].(string); ok && subID != "" && subID != p.Subject {
			return vcerr.InvalidStructure("vcjwt: sub does not equal credentialSubject.id")
		}
	}
	if from, ok := p.Credential["validFrom"].(string); ok && from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err == nil && !t.IsZero() && timeutil.FromTime(t) != p.NotBefore {
			return vcerr.InvalidStructure("vcjwt: nbf does not equal vc.validFrom")
		}
	}
	if until, ok := p.Credential["validUntil"].(string); ok && until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err == nil && !t.IsZero() && timeutil.FromTime(t) != p.Expiry {
			return vcerr.InvalidStructure("vcjwt: exp does not equal vc.validUntil")
		}
	}
	return nil
}
