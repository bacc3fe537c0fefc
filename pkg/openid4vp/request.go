package openid4vp

import (
	"encoding/base64"
	"net/url"

	"github.com/google/uuid"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/nonce"
	"github.com/pilacorp/vc-engine/pkg/store"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

// RequestMode is one of the four ways an authentication request
// reaches a wallet.
type RequestMode string

const (
	ModeQuery                  RequestMode = "query"
	ModeRequestByReference     RequestMode = "request_by_reference"
	ModeSignedRequestByValue   RequestMode = "signed_request_by_value"
	ModeSignedRequestByReference RequestMode = "signed_request_by_reference"
)

// ResponseMode is one of the four response delivery mechanisms.
type ResponseMode string

const (
	ResponseModeFragment      ResponseMode = "fragment"
	ResponseModeQuery         ResponseMode = "query"
	ResponseModeDirectPost    ResponseMode = "direct_post"
	ResponseModeDirectPostJWT ResponseMode = "direct_post.jwt"
)

// AuthenticationRequestParameters is the full set of parameters every
// request-construction mode produces.
type AuthenticationRequestParameters struct {
	ResponseType           []string        `json:"response_type"`
	ClientID               string          `json:"client_id"`
	ClientIDScheme          Scheme          `json:"client_id_scheme"`
	Nonce                   string          `json:"nonce"`
	State                   string          `json:"state"`
	ResponseMode            ResponseMode    `json:"response_mode"`
	RedirectURI             string          `json:"redirect_uri,omitempty"`
	ResponseURI             string          `json:"response_uri,omitempty"`
	PresentationDefinition  *PresentationDefinition `json:"presentation_definition,omitempty"`
	ClientMetadata          codec.ClaimSet  `json:"client_metadata,omitempty"`
	ClientMetadataURI       string          `json:"client_metadata_uri,omitempty"`
}

// RequestInput is the caller-supplied half of a request: everything but
// the nonce/state, which CreateRequest mints fresh every call.
type RequestInput struct {
	ClientID               ClientID
	Mode                   RequestMode
	ResponseType           []string
	ResponseMode           ResponseMode
	RedirectURI            string
	ResponseURI            string
	PresentationDefinition *PresentationDefinition
	ClientMetadata         codec.ClaimSet
	ClientMetadataURI      string
	// RequestURI is the URL that will serve this request's plain (mode
	// RequestByReference) or signed (mode SignedRequestByReference)
	// content; required for those two modes, ignored otherwise.
	RequestURI string
}

// Request is the outcome of CreateRequest: the recorded parameters plus
// whatever serialized form its Mode requires.
type Request struct {
	Params *AuthenticationRequestParameters
	// JAR is the signed JWT ("JSON Authorization Request") for
	// SignedRequestByValue/SignedRequestByReference; empty otherwise.
	JAR string
	// QueryParams is what the caller places on the authorization
	// request URL: the full parameter set for Query, or just
	// client_id(+client_id_scheme)+request_uri for the *ByReference
	// modes, or client_id+request for SignedRequestByValue.
	QueryParams url.Values
}

// Verifier is Openid4VpVerifier: it constructs requests, tracks
// outstanding state/nonce pairs, and validates responses.
type Verifier struct {
	km     *vckey.KeyMaterial
	jws    *jose.Engine
	nonces *nonce.Service
	states *store.MapStore[string, *AuthenticationRequestParameters]
}

// NewVerifier constructs an Openid4VpVerifier that signs requests (for
// the signed modes) with km.
func NewVerifier(km *vckey.KeyMaterial, jwsEngine *jose.Engine) *Verifier {
	return &Verifier{
		km:     km,
		jws:    jwsEngine,
		nonces: nonce.New(),
		states: store.New[string, *AuthenticationRequestParameters](),
	}
}

// CreateRequest builds and records a fresh AuthenticationRequestParameters
// for one protocol run: it validates the
// client-id-scheme/mode combination, mints nonce and state, and inserts
// state_to_request before returning.
func (v *Verifier) CreateRequest(in RequestInput) (*Request, error) {
	if err := in.ClientID.validate(); err != nil {
		return nil, err
	}
	if in.Mode == ModeQuery && in.ClientID.RequiresSignedRequest() {
		return nil, vcerr.Usage("openid4vp: client_id_scheme %s requires a signed request, Query mode is forbidden", in.ClientID.Scheme)
	}
	if in.Mode != ModeSignedRequestByValue && in.Mode != ModeSignedRequestByReference && in.ClientID.RequiresSignedRequest() {
		return nil, vcerr.Usage("openid4vp: client_id_scheme %s requires a signed request mode", in.ClientID.Scheme)
	}
	if in.ClientID.ForbidsRedirectURI() && in.RedirectURI != "" {
		return nil, vcerr.Usage("openid4vp: client_id_scheme %s forbids redirect_uri", in.ClientID.Scheme)
	}
	if len(in.ResponseType) == 0 {
		return nil, vcerr.Usage("openid4vp: response_type must name vp_token and/or id_token")
	}

	params := &AuthenticationRequestParameters{
		ResponseType:           in.ResponseType,
		ClientID:               in.ClientID.ID,
		ClientIDScheme:          in.ClientID.Scheme,
		Nonce:                   v.nonces.Generate(),
		State:                   uuid.NewString(),
		ResponseMode:            in.ResponseMode,
		RedirectURI:             in.RedirectURI,
		ResponseURI:             in.ResponseURI,
		PresentationDefinition:  in.PresentationDefinition,
		ClientMetadata:          in.ClientMetadata,
		ClientMetadataURI:       in.ClientMetadataURI,
	}

	v.states.Put(params.State, params)

	req := &Request{Params: params}
	if err := v.serialize(in, req); err != nil {
		return nil, err
	}
	return req, nil
}

// serialize fills in req.JAR/req.QueryParams per in.Mode.
func (v *Verifier) serialize(in RequestInput, req *Request) error {
	switch in.Mode {
	case ModeQuery:
		req.QueryParams = queryParamsFor(req.Params)
		return nil
	case ModeRequestByReference:
		if in.RequestURI == "" {
			return vcerr.Usage("openid4vp: request_by_reference mode requires RequestURI")
		}
		req.QueryParams = url.Values{
			"client_id":        {req.Params.ClientID},
			"client_id_scheme": {string(req.Params.ClientIDScheme)},
			"request_uri":      {in.RequestURI},
		}
		return nil
	case ModeSignedRequestByValue:
		jar, err := v.signRequestObject(req.Params, in.ClientID)
		if err != nil {
			return err
		}
		req.JAR = jar
		req.QueryParams = url.Values{
			"client_id": {req.Params.ClientID},
			"request":   {jar},
		}
		return nil
	case ModeSignedRequestByReference:
		if in.RequestURI == "" {
			return vcerr.Usage("openid4vp: signed_request_by_reference mode requires RequestURI")
		}
		jar, err := v.signRequestObject(req.Params, in.ClientID)
		if err != nil {
			return err
		}
		req.JAR = jar
		req.QueryParams = url.Values{
			"client_id":        {req.Params.ClientID},
			"client_id_scheme": {string(req.Params.ClientIDScheme)},
			"request_uri":      {in.RequestURI},
		}
		return nil
	default:
		return vcerr.Usage("openid4vp: unknown request mode %q", in.Mode)
	}
}

func queryParamsFor(p *AuthenticationRequestParameters) url.Values {
	v := url.Values{}
	for _, rt := range p.ResponseType {
		v.Add("response_type", rt)
	}
	v.Set("client_id", p.ClientID)
	v.Set("client_id_scheme", string(p.ClientIDScheme))
	v.Set("nonce", p.Nonce)
	v.Set("state", p.State)
	v.Set("response_mode", string(p.ResponseMode))
	if p.RedirectURI != "" {
		v.Set("redirect_uri", p.RedirectURI)
	}
	if p.ResponseURI != "" {
		v.Set("response_uri", p.ResponseURI)
	}
	if p.PresentationDefinition != nil {
		if b, err := codec.MarshalJSON(p.PresentationDefinition); err == nil {
			v.Set("presentation_definition", string(b))
		}
	}
	if p.ClientMetadata != nil {
		if b, err := codec.MarshalJSON(p.ClientMetadata); err == nil {
			v.Set("client_metadata", string(b))
		}
	}
	if p.ClientMetadataURI != "" {
		v.Set("client_metadata_uri", p.ClientMetadataURI)
	}
	return v
}

// RequestObjectJSON serializes params as the plain JSON a
// RequestByReference request_uri endpoint serves on demand.
func (v *Verifier) RequestObjectJSON(params *AuthenticationRequestParameters) ([]byte, error) {
	return codec.MarshalJSON(params)
}

// signRequestObject signs params as a JAR (JWT-secured authorization
// request, RFC 9101), the form SignedRequestByValue embeds directly and
// SignedRequestByReference serves at request_uri. The client-id scheme
// determines which extra header fields accompany the signature: a
// VerifierAttestation request carries its attestation JWT in the header
// "jwt" field, a CertificateSanDNS request carries its chain in "x5c".
func (v *Verifier) signRequestObject(params *AuthenticationRequestParameters, clientID ClientID) (string, error) {
	payload, err := codec.MarshalJSON(params)
	if err != nil {
		return "", err
	}
	extra := jose.Header{}
	switch clientID.Scheme {
	case SchemeVerifierAttestation:
		extra["jwt"] = clientID.AttestationJWT
	case SchemeCertificateSanDNS:
		// x5c entries are standard (padded) base64 per RFC 7515
		// section 4.1.6, not the base64url used everywhere else.
		chain := make([]string, len(clientID.X509Chain))
		for i, der := range clientID.X509Chain {
			chain[i] = base64.StdEncoding.EncodeToString(der)
		}
		extra["x5c"] = chain
	}
	return v.jws.Sign(v.km, payload, extra)
}

// LookupState returns the recorded parameters for state without
// consuming it, for callers that need to inspect a run mid-flight.
func (v *Verifier) LookupState(state string) (*AuthenticationRequestParameters, bool) {
	return v.states.Get(state)
}
