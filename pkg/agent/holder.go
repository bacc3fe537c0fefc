package agent

import (
	"crypto/ecdsa"
	"net/url"
	"time"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/openid4vp"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/store"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// Format tags the representation a stored credential was issued in.
type Format string

const (
	FormatVCJWT Format = "jwt_vc"
	FormatSDJWT Format = "vc+sd-jwt"
	FormatMdoc  Format = "mso_mdoc"
)

// StoredCredential is one credential-store entry. Exactly the fields of
// its Format are populated.
type StoredCredential struct {
	ID     string
	Format Format

	// VCJWT is the compact JWS for FormatVCJWT.
	VCJWT string

	// SDJWT is the issuance combined form (issuer JWT plus every
	// disclosure, trailing tilde) for FormatSDJWT.
	SDJWT string

	// IssuerSigned and DocType are the full issuer-signed document for
	// FormatMdoc.
	IssuerSigned *mdoc.IssuerSigned
	DocType      mdoc.DocType
}

// Holder stores credentials and builds presentations from them: plain
// VC-JWT, selectively-disclosed SD-JWT with a key-binding JWT, and
// device-signed mdoc, each shaped as the vp_token response an
// Openid4VpVerifier expects.
type Holder struct {
	km    *vckey.KeyMaterial
	jws   *jose.Engine
	creds *store.MapStore[string, *StoredCredential]
	clock timeutil.TimeProvider
}

// NewHolder constructs a Holder bound to km (role must be RoleHolder).
func NewHolder(km *vckey.KeyMaterial, jws *jose.Engine) *Holder {
	return &Holder{
		km:    km,
		jws:   jws,
		creds: store.New[string, *StoredCredential](),
		clock: timeutil.WallClock,
	}
}

// WithClock replaces the wall clock, for tests that pin iat values.
func (h *Holder) WithClock(clock timeutil.TimeProvider) *Holder {
	h.clock = clock
	return h
}

// KeyMaterial exposes the holder's binding key.
func (h *Holder) KeyMaterial() *vckey.KeyMaterial { return h.km }

// Store records cred under cred.ID, replacing any previous entry.
func (h *Holder) Store(cred *StoredCredential) error {
	if cred.ID == "" {
		return vcerr.Usage("agent: stored credential needs an id")
	}
	h.creds.Put(cred.ID, cred)
	return nil
}

// Get returns the stored credential with the given id.
func (h *Holder) Get(id string) (*StoredCredential, bool) {
	return h.creds.Get(id)
}

// CredentialIDs lists every stored credential id, in no particular order.
func (h *Holder) CredentialIDs() []string { return h.creds.Keys() }

// ResolveSignedRequest fetches and verifies a signed request object
// served at requestURI (request-by-reference, RFC 9101) using
// fetchJAR for the network round trip, so callers inject pkg/fetch (or a
// test stub) rather than this package owning an HTTP client.
func (h *Holder) ResolveSignedRequest(fetchJAR func(uri string) (string, error), requestURI string, opts openid4vp.RequestObjectVerifyOptions) (*openid4vp.AuthenticationRequestParameters, error) {
	jar, err := fetchJAR(requestURI)
	if err != nil {
		return nil, vcerr.Fetch("agent: fetch request object from %s", requestURI).Wrap(err)
	}
	return openid4vp.VerifyRequestObject(h.jws, jar, opts)
}

func submissionFor(descriptorID string, format Format) *openid4vp.PresentationSubmission {
	return &openid4vp.PresentationSubmission{
		ID:           descriptorID + "-submission",
		DefinitionID: descriptorID + "-definition",
		DescriptorMap: []openid4vp.DescriptorMapEntry{
			{ID: descriptorID, Format: string(format), Path: "$"},
		},
	}
}

func responseParams(req *openid4vp.AuthenticationRequestParameters, vpToken string, submission *openid4vp.PresentationSubmission) (url.Values, error) {
	subJSON, err := codec.MarshalJSON(submission)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"vp_token":                {vpToken},
		"presentation_submission": {string(subJSON)},
		"state":                   {req.State},
	}, nil
}

// PresentVCJWT answers req with the stored VC-JWT as a bare vp_token.
func (h *Holder) PresentVCJWT(credID, descriptorID string, req *openid4vp.AuthenticationRequestParameters) (url.Values, error) {
	cred, ok := h.creds.Get(credID)
	if !ok {
		return nil, vcerr.Usage("agent: no stored credential %q", credID)
	}
	if cred.Format != FormatVCJWT {
		return nil, vcerr.Usage("agent: credential %q is %s, not %s", credID, cred.Format, FormatVCJWT)
	}
	return responseParams(req, cred.VCJWT, submissionFor(descriptorID, FormatVCJWT))
}

// PresentSDJWT answers req with a selective disclosure of the stored
// SD-JWT: only the claims named in discloseClaims travel, and a
// key-binding JWT ties the presentation to req's nonce and client_id.
func (h *Holder) PresentSDJWT(credID, descriptorID string, discloseClaims []string, req *openid4vp.AuthenticationRequestParameters) (url.Values, error) {
	presentation, err := h.BuildSDJWTPresentation(credID, discloseClaims, req.ClientID, req.Nonce)
	if err != nil {
		return nil, err
	}
	return responseParams(req, presentation, submissionFor(descriptorID, FormatSDJWT))
}

// BuildSDJWTPresentation builds the tilde-separated presentation form
// issuer_jwt~d1~…~kb_jwt for the named claims, signing the key-binding
// JWT with the holder's key against the given audience and nonce.
func (h *Holder) BuildSDJWTPresentation(credID string, discloseClaims []string, audience, nonce string) (string, error) {
	cred, ok := h.creds.Get(credID)
	if !ok {
		return "", vcerr.Usage("agent: no stored credential %q", credID)
	}
	if cred.Format != FormatSDJWT {
		return "", vcerr.Usage("agent: credential %q is %s, not %s", credID, cred.Format, FormatSDJWT)
	}

	sdJWT, disclosures, err := sdjwt.SplitIssuance(cred.SDJWT)
	if err != nil {
		return "", err
	}

	selected := make([]*sdjwt.Disclosure, 0, len(discloseClaims))
	for _, name := range discloseClaims {
		found := false
		for _, d := range disclosures {
			if d.Name == name {
				selected = append(selected, d)
				found = true
				break
			}
		}
		if !found {
			return "", vcerr.Usage("agent: credential %q has no disclosable claim %q", credID, name)
		}
	}

	digestAlg, err := issuerDigestAlg(sdJWT)
	if err != nil {
		return "", err
	}
	sdHash, err := sdjwt.ComputeSDHash(sdJWT, selected, digestAlg)
	if err != nil {
		return "", err
	}

	kbJWT, err := sdjwt.BuildKeyBindingJWT(h.jws, h.km, sdjwt.KeyBindingClaims{
		Nonce:    nonce,
		Audience: audience,
		IssuedAt: h.clock.Now().Unix(),
		SDHash:   sdHash,
	})
	if err != nil {
		return "", err
	}

	return sdjwt.CombineForPresentation(sdJWT, selected, kbJWT), nil
}

func issuerDigestAlg(sdJWT string) (vckey.DigestAlg, error) {
	parsed, err := jose.Parse(sdJWT)
	if err != nil {
		return "", err
	}
	var payload codec.ClaimSet
	if err := codec.UnmarshalJSON(parsed.Payload, &payload); err != nil {
		return "", vcerr.Parse("agent: invalid sd-jwt payload").Wrap(err)
	}
	if alg, ok := payload["_sd_alg"].(string); ok && alg != "" {
		return vckey.DigestAlg(alg), nil
	}
	return vckey.DigestSHA256, nil
}

// MdocPresentInput selects what an mdoc presentation reveals and how it
// travels back to the verifier.
type MdocPresentInput struct {
	CredentialID string
	DescriptorID string
	// Requested limits the presented elements; nil presents everything.
	Requested mdoc.RequestedElements
	// EncryptTo is the verifier's ECDH-ES public key from its client
	// metadata. When set, the response params are sealed into a JWE
	// whose apu carries the mdoc-generated nonce (the OID4VPHandover
	// binding); when nil the legacy bare-challenge path signs
	// utf8(nonce) directly.
	EncryptTo *ecdsa.PublicKey
	Enc       vckey.AEADAlg
}

// MdocPresentation is PresentMdoc's outcome: the plain response
// parameters, plus (when encrypted) the compact JWE the holder POSTs as
// the direct_post.jwt "response" form field.
type MdocPresentation struct {
	Params             url.Values
	ResponseJWE        string
	MdocGeneratedNonce string
}

// PresentMdoc builds a DeviceResponse for req: it narrows the stored
// issuerSigned to the requested elements, signs DeviceAuthentication
// with the holder's device key over the OID4VPHandover session
// transcript (or the bare nonce on the legacy path), and — when
// in.EncryptTo is set — seals the whole parameter set into a JWE whose
// apu header carries the mdoc-generated nonce.
func (h *Holder) PresentMdoc(in MdocPresentInput, req *openid4vp.AuthenticationRequestParameters) (*MdocPresentation, error) {
	cred, ok := h.creds.Get(in.CredentialID)
	if !ok {
		return nil, vcerr.Usage("agent: no stored credential %q", in.CredentialID)
	}
	if cred.Format != FormatMdoc {
		return nil, vcerr.Usage("agent: credential %q is %s, not %s", in.CredentialID, cred.Format, FormatMdoc)
	}

	presented := *cred.IssuerSigned
	if in.Requested != nil {
		namespaces, err := mdoc.SelectNamespaces(cred.IssuerSigned.NameSpaces, in.Requested)
		if err != nil {
			return nil, err
		}
		presented.NameSpaces = namespaces
	}

	deviceNS, err := mdoc.EmptyDeviceNameSpaces()
	if err != nil {
		return nil, err
	}

	out := &MdocPresentation{}
	var deviceAuth mdoc.DeviceAuth
	if in.EncryptTo != nil {
		random, err := (vckey.Provider{}).Random(16)
		if err != nil {
			return nil, err
		}
		out.MdocGeneratedNonce = codec.B64URL(random)

		transcript, err := mdoc.BuildSessionTranscript(req.ClientID, req.ResponseURI, out.MdocGeneratedNonce, req.Nonce)
		if err != nil {
			return nil, err
		}
		authBytes, err := mdoc.BuildDeviceAuthenticationBytes(transcript, cred.DocType, deviceNS)
		if err != nil {
			return nil, err
		}
		sig, err := mdoc.SignDeviceAuthentication(h.km, authBytes)
		if err != nil {
			return nil, err
		}
		deviceAuth.DeviceSignature = sig
	} else {
		sig, err := mdoc.SignLegacyBareChallenge(h.km, req.Nonce)
		if err != nil {
			return nil, err
		}
		deviceAuth.DeviceSignature = sig
	}

	devResp := &mdoc.DeviceResponse{
		Version: "1.0",
		Documents: []mdoc.Document{{
			DocType:      cred.DocType,
			IssuerSigned: presented,
			DeviceSigned: mdoc.DeviceSigned{NameSpaces: deviceNS, DeviceAuth: deviceAuth},
		}},
		Status: mdoc.ResponseStatusOK,
	}
	raw, err := devResp.Marshal()
	if err != nil {
		return nil, err
	}

	params, err := responseParams(req, codec.B64URL(raw), submissionFor(in.DescriptorID, FormatMdoc))
	if err != nil {
		return nil, err
	}
	out.Params = params

	if in.EncryptTo != nil {
		enc := in.Enc
		if enc == "" {
			enc = vckey.AEADA256GCM
		}
		jwe, err := h.jws.EncryptECDHES(in.EncryptTo, enc, []byte(out.MdocGeneratedNonce), []byte(req.Nonce), []byte(params.Encode()), nil)
		if err != nil {
			return nil, err
		}
		out.ResponseJWE = jwe
	}

	return out, nil
}

// SelfIssuedIDToken builds the SIOPv2 id_token half of a response:
// iss == sub == thumbprint of the holder's key, aud = the verifier's
// client_id, nonce echoed from the request.
func (h *Holder) SelfIssuedIDToken(req *openid4vp.AuthenticationRequestParameters, validity time.Duration) (string, error) {
	thumbprint, err := h.km.Thumbprint()
	if err != nil {
		return "", err
	}
	now := h.clock.Now()
	payload := codec.ClaimSet{
		"iss":     thumbprint,
		"sub":     thumbprint,
		"aud":     req.ClientID,
		"nonce":   req.Nonce,
		"iat":     now.Unix(),
		"exp":     now.Add(validity).Unix(),
		"sub_jwk": h.km.JWK(),
	}
	payloadJSON, err := codec.MarshalJSON(payload)
	if err != nil {
		return "", err
	}
	return h.jws.Sign(h.km, payloadJSON, jose.Header{"typ": "JWT"})
}
