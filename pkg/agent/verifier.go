package agent

import (
	"context"
	"net/url"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/logging"
	"github.com/pilacorp/vc-engine/pkg/openid4vp"
	"github.com/pilacorp/vc-engine/pkg/status"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// Verifier drives the relying-party side: it delegates request
// construction and response validation to pkg/openid4vp and layers the
// status/revocation check on top, because revocation is orthogonal to
// cryptographic validity: a revoked credential still verifies, the
// outcome just carries the flag.
type Verifier struct {
	km     *vckey.KeyMaterial
	jws    *jose.Engine
	vp     *openid4vp.Verifier
	status *status.Client
	log    logging.Logger
}

// NewVerifier constructs a Verifier agent bound to km (role must be
// RoleVerifier).
func NewVerifier(km *vckey.KeyMaterial, jws *jose.Engine) *Verifier {
	return &Verifier{
		km:     km,
		jws:    jws,
		vp:     openid4vp.NewVerifier(km, jws),
		status: status.NewClient(),
		log:    logging.Component("verifier"),
	}
}

// KeyMaterial exposes the verifier's signing/decryption key.
func (v *Verifier) KeyMaterial() *vckey.KeyMaterial { return v.km }

// Protocol exposes the underlying Openid4VpVerifier for request
// construction and direct response validation.
func (v *Verifier) Protocol() *openid4vp.Verifier { return v.vp }

// DecryptResponse unwraps a direct_post.jwt body: encrypted responses
// decrypt against the verifier's own key, signed ones verify against
// resolver. The recovered apu is the mdoc-generated nonce an mso_mdoc
// descriptor's session transcript needs.
func (v *Verifier) DecryptResponse(token string, resolver jose.KeyResolver) (*openid4vp.DirectPostJWTResult, error) {
	return openid4vp.ParseDirectPostJWTResponse(v.jws, token, resolver, func(t string) ([]byte, jose.Header, error) {
		return v.jws.DecryptECDHES(v.km, t)
	})
}

// RevocationStatus is the status-list outcome for one descriptor.
// Checked is false when the credential carries no credentialStatus.
type RevocationStatus struct {
	DescriptorID string
	Checked      bool
	Revoked      bool
	Err          error
}

// VerifiedPresentation pairs the protocol-level validation result with
// the per-descriptor revocation outcomes.
type VerifiedPresentation struct {
	Response    *openid4vp.ResponseResult
	Revocations []RevocationStatus
}

// ValidateAndCheckStatus runs the full verifier pipeline: the
// openid4vp response-validation state machine, then a status-list fetch
// for every successfully verified descriptor whose credential names a
// credentialStatus. Status failures never invalidate the presentation;
// they surface in the per-descriptor RevocationStatus.
func (v *Verifier) ValidateAndCheckStatus(ctx context.Context, params url.Values, opts openid4vp.ValidateOptions) (*VerifiedPresentation, error) {
	resp, err := v.vp.ValidateResponse(params, opts)
	if err != nil {
		return nil, err
	}

	out := &VerifiedPresentation{Response: resp}
	for _, desc := range resp.Descriptors {
		rs := RevocationStatus{DescriptorID: desc.DescriptorID}
		if desc.Err == nil {
			if claims, ok := desc.Claims.(codec.ClaimSet); ok {
				if listURL, index, ok := statusRef(claims); ok {
					rs.Checked = true
					rs.Revoked, rs.Err = v.status.FetchAndCheckRevocation(ctx, listURL, index)
					if rs.Err != nil {
						v.log.WithField("state", resp.State).WithField("err", rs.Err).Warn("status list check failed")
					}
				}
			}
		}
		out.Revocations = append(out.Revocations, rs)
	}
	return out, nil
}

// statusRef extracts the status-list URL and bit index from a verified
// credential's claims. Both the Bitstring Status List field names
// (statusListCredential/statusListIndex) and the older revocation-list
// names (revocationListUrl/index) are accepted on input, since both
// generations of drafts appear in the wild.
func statusRef(claims codec.ClaimSet) (string, int, bool) {
	cs, ok := claims["credentialStatus"].(map[string]interface{})
	if !ok {
		return "", 0, false
	}

	listURL, _ := cs["statusListCredential"].(string)
	if listURL == "" {
		listURL, _ = cs["revocationListUrl"].(string)
	}
	if listURL == "" {
		return "", 0, false
	}

	index, ok := intField(cs, "statusListIndex")
	if !ok {
		index, ok = intField(cs, "index")
	}
	if !ok {
		return "", 0, false
	}
	return listURL, index, true
}

// intField reads a claim that serializes as either a JSON number or a
// decimal string, both of which appear in published status lists.
func intField(m map[string]interface{}, key string) (int, bool) {
	switch val := m[key].(type) {
	case float64:
		return int(val), true
	case string:
		n := 0
		if val == "" {
			return 0, false
		}
		for _, r := range val {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		return n, true
	default:
		return 0, false
	}
}
