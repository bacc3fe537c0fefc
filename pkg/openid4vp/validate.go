package openid4vp

import (
	"crypto"
	"errors"
	"net/url"
	"time"

	josejwk "github.com/go-jose/go-jose/v3"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
)

// DescriptorResult is one descriptor_map entry's outcome: the disclosed
// claims on success, or Err on failure. A failing descriptor never
// aborts the others.
type DescriptorResult struct {
	DescriptorID string
	Format       string
	Claims       interface{}
	Err          error
}

// IDTokenResult is a validated SIOPv2 self-issued ID token.
type IDTokenResult struct {
	Subject string
	Claims  codec.ClaimSet
}

// ResponseResult is the aggregate outcome of ValidateResponse.
type ResponseResult struct {
	State       string
	Descriptors []DescriptorResult
	IDToken     *IDTokenResult
}

// ValidateOptions supplies everything ValidateResponse needs beyond the
// recorded request state: key resolution for each credential format and
// the clock/leeway VcJwtEngine/SdJwtEngine/MdocEngine use for their own
// time checks.
type ValidateOptions struct {
	// KeyResolver resolves the issuer signature key for jwt_vc/jwt_vp
	// and vc+sd-jwt credentials.
	KeyResolver jose.KeyResolver
	// MdocIssuerKey resolves the issuer public key for an mso_mdoc
	// credential of the given docType.
	MdocIssuerKey func(docType mdoc.DocType) (interface{}, error)
	// MdocGeneratedNonce is the apu value recovered from an encrypted
	// direct_post.jwt response; empty selects the legacy bare-challenge
	// device-binding path.
	MdocGeneratedNonce string
	Clock              timeutil.TimeProvider
	Leeway             time.Duration
}

func (o ValidateOptions) clock() timeutil.TimeProvider {
	if o.Clock != nil {
		return o.Clock
	}
	return timeutil.WallClock
}

// ValidateResponse runs the response-validation state machine: state
// lookup, response-type branch, per-descriptor verification, and
// aggregation. It consumes (single-use) the request recorded under
// params's "state" value.
func (v *Verifier) ValidateResponse(params url.Values, opts ValidateOptions) (*ResponseResult, error) {
	state := params.Get("state")
	req, ok := v.states.Take(state)
	if !ok {
		return nil, &vcerr.ValidationError{Field: "state", State: state, Err: errors.New("unknown or already-consumed state")}
	}

	result := &ResponseResult{State: state}

	wantsVPToken, wantsIDToken := false, false
	for _, rt := range req.ResponseType {
		switch rt {
		case "vp_token":
			wantsVPToken = true
		case "id_token":
			wantsIDToken = true
		}
	}

	if wantsVPToken {
		descriptors, err := v.validateVPToken(req, params, opts)
		if err != nil {
			return nil, err
		}
		result.Descriptors = descriptors
	}

	if wantsIDToken {
		idt, err := v.validateIDToken(req, params, opts)
		if err != nil {
			return nil, err
		}
		result.IDToken = idt
	}

	return result, nil
}

func (v *Verifier) validateVPToken(req *AuthenticationRequestParameters, params url.Values, opts ValidateOptions) ([]DescriptorResult, error) {
	vpTokenRaw := params.Get("vp_token")
	submissionRaw := params.Get("presentation_submission")
	if vpTokenRaw == "" || submissionRaw == "" {
		return nil, &vcerr.ValidationError{Field: "vp_token", State: req.State, Err: errors.New("missing vp_token or presentation_submission")}
	}

	var submission PresentationSubmission
	if err := codec.UnmarshalJSON([]byte(submissionRaw), &submission); err != nil {
		return nil, &vcerr.ValidationError{Field: "presentation_submission", State: req.State, Err: err}
	}

	vpTokenJSON, err := decodeJSON([]byte(vpTokenRaw))
	if err != nil {
		// vp_token MAY be a bare compact-serialization string (single
		// credential, no wrapping array/object); JSONPath "$" then
		// resolves to the whole string.
		vpTokenJSON = vpTokenRaw
	}

	results := make([]DescriptorResult, 0, len(submission.DescriptorMap))
	for _, entry := range submission.DescriptorMap {
		res := v.validateDescriptor(req, entry, vpTokenJSON, opts)
		if res.Err != nil {
			res.Err = &vcerr.ValidationError{Field: entry.ID, State: req.State, Err: res.Err}
		}
		results = append(results, res)
	}
	return results, nil
}

func (v *Verifier) validateDescriptor(req *AuthenticationRequestParameters, entry DescriptorMapEntry, vpTokenJSON interface{}, opts ValidateOptions) DescriptorResult {
	res := DescriptorResult{DescriptorID: entry.ID, Format: entry.Format}

	selected, err := EvalJSONPath(vpTokenJSON, entry.CumulativePath())
	if err != nil {
		res.Err = err
		return res
	}
	token, ok := selected.(string)
	if !ok {
		res.Err = vcerr.InvalidStructure("openid4vp: descriptor %q did not select a credential string", entry.ID)
		return res
	}

	switch entry.Format {
	case "jwt_vc", "jwt_vp":
		parsed, err := vcjwt.Verify(v.jws, token, opts.KeyResolver, opts.clock(), opts.Leeway)
		if err != nil {
			res.Err = err
			return res
		}
		res.Claims = parsed.Credential
	case "jwt_sd", "vc+sd-jwt":
		claims, err := v.verifySDJWTPresentation(req, token, opts)
		if err != nil {
			res.Err = err
			return res
		}
		res.Claims = claims
	case "mso_mdoc":
		claims, err := v.verifyMdocPresentation(req, token, opts)
		if err != nil {
			res.Err = err
			return res
		}
		res.Claims = claims
	default:
		res.Err = vcerr.Usage("openid4vp: unsupported descriptor format %q", entry.Format)
	}
	return res
}

func (v *Verifier) verifySDJWTPresentation(req *AuthenticationRequestParameters, token string, opts ValidateOptions) (codec.ClaimSet, error) {
	sdJWT, disclosures, kbJWT, err := sdjwt.SplitPresentation(token)
	if err != nil {
		return nil, err
	}

	jws, err := v.jws.Verify(sdJWT, opts.KeyResolver)
	if err != nil {
		return nil, err
	}
	var payload codec.ClaimSet
	if err := codec.UnmarshalJSON(jws.Payload, &payload); err != nil {
		return nil, vcerr.Parse("openid4vp: invalid sd-jwt payload").Wrap(err)
	}

	resolved, err := sdjwt.ResolveDisclosed(payload, disclosures)
	if err != nil {
		return nil, err
	}

	if kbJWT != "" {
		cnfKey, err := sdjwt.ConfirmationKey(payload)
		if err != nil {
			return nil, err
		}
		algName, _ := payload["_sd_alg"].(string)
		if algName == "" {
			algName = string(vckey.DigestSHA256)
		}
		if _, err := sdjwt.VerifyKeyBindingJWT(v.jws, kbJWT, jose.StaticResolver{Key: cnfKey}, sdJWT, disclosures, vckey.DigestAlg(algName), req.ClientID, req.Nonce); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

func (v *Verifier) verifyMdocPresentation(req *AuthenticationRequestParameters, token string, opts ValidateOptions) (map[mdoc.NameSpace]map[mdoc.ElementIdentifier]mdoc.ElementValue, error) {
	raw, err := codec.B64URLDecode(token)
	if err != nil {
		return nil, err
	}
	devResp, err := mdoc.ParseDeviceResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(devResp.Documents) == 0 {
		return nil, vcerr.InvalidStructure("openid4vp: device response has no documents")
	}
	doc := devResp.Documents[0]

	issuerPub, err := opts.MdocIssuerKey(doc.DocType)
	if err != nil {
		return nil, err
	}
	mso, err := doc.IssuerSigned.VerifyIssuerAuth(issuerPub)
	if err != nil {
		return nil, err
	}
	if err := doc.IssuerSigned.VerifyDigests(mso); err != nil {
		return nil, err
	}

	if opts.MdocGeneratedNonce != "" {
		transcript, err := mdoc.BuildSessionTranscript(req.ClientID, req.ResponseURI, opts.MdocGeneratedNonce, req.Nonce)
		if err != nil {
			return nil, err
		}
		if err := doc.VerifyDeviceAuthentication(mso, transcript); err != nil {
			return nil, err
		}
	} else {
		if err := doc.VerifyLegacyBareChallenge(mso, req.Nonce); err != nil {
			return nil, err
		}
	}

	return doc.IssuerSigned.ElementValues()
}

func (v *Verifier) validateIDToken(req *AuthenticationRequestParameters, params url.Values, opts ValidateOptions) (*IDTokenResult, error) {
	idToken := params.Get("id_token")
	if idToken == "" {
		return nil, &vcerr.ValidationError{Field: "id_token", State: req.State, Err: errors.New("missing id_token")}
	}

	parsed, err := jose.Parse(idToken)
	if err != nil {
		return nil, err
	}
	var payload codec.ClaimSet
	if err := codec.UnmarshalJSON(parsed.Payload, &payload); err != nil {
		return nil, vcerr.Parse("openid4vp: invalid id_token payload").Wrap(err)
	}

	subJWKRaw, ok := payload["sub_jwk"]
	if !ok {
		return nil, vcerr.InvalidStructure("openid4vp: id_token has no sub_jwk claim")
	}
	b, err := codec.MarshalJSON(subJWKRaw)
	if err != nil {
		return nil, err
	}
	var jwk josejwk.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return nil, vcerr.Parse("openid4vp: invalid sub_jwk").Wrap(err)
	}

	if _, err := v.jws.Verify(idToken, jose.StaticResolver{Key: jwk.Key}); err != nil {
		return nil, err
	}

	iss, _ := payload["iss"].(string)
	sub, _ := payload["sub"].(string)
	aud, _ := payload["aud"].(string)
	idNonce, _ := payload["nonce"].(string)

	if iss != sub {
		return nil, vcerr.InvalidStructure("openid4vp: id_token iss does not equal sub")
	}
	if aud != req.ClientID {
		return nil, vcerr.InvalidStructure("openid4vp: id_token aud does not match client_id")
	}
	if idNonce != req.Nonce {
		return nil, vcerr.InvalidStructure("openid4vp: id_token nonce does not match request nonce")
	}

	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, vcerr.Usage("openid4vp: compute sub_jwk thumbprint").Wrap(err)
	}
	if sub != codec.B64URL(thumbprint) {
		return nil, vcerr.InvalidStructure("openid4vp: id_token sub does not equal thumbprint(sub_jwk)")
	}

	nbf := numericDateFrom(payload["iat"])
	exp := numericDateFrom(payload["exp"])
	if !timeutil.WithinLeeway(opts.clock().Now(), nbf, exp, opts.Leeway) {
		return nil, vcerr.Expired("openid4vp: id_token iat/exp outside leeway")
	}

	return &IDTokenResult{Subject: sub, Claims: payload}, nil
}

func numericDateFrom(v interface{}) timeutil.NumericDate {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return timeutil.NumericDate(int64(f))
}
