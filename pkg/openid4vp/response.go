package openid4vp

import (
	"net/url"
	"strings"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// ParseFragmentResponse parses the parameters a ResponseModeFragment
// authorization response carries after "#" in the redirect URI.
func ParseFragmentResponse(redirectedURL string) (url.Values, error) {
	u, err := url.Parse(redirectedURL)
	if err != nil {
		return nil, vcerr.Parse("openid4vp: invalid redirected url").Wrap(err)
	}
	return url.ParseQuery(u.Fragment)
}

// ParseQueryResponse parses the parameters a ResponseModeQuery
// authorization response carries in the URL's query string.
func ParseQueryResponse(redirectedURL string) (url.Values, error) {
	u, err := url.Parse(redirectedURL)
	if err != nil {
		return nil, vcerr.Parse("openid4vp: invalid redirected url").Wrap(err)
	}
	return u.Query(), nil
}

// ParseDirectPostResponse parses a ResponseModeDirectPost (form_post)
// request body.
func ParseDirectPostResponse(formBody string) (url.Values, error) {
	return url.ParseQuery(formBody)
}

// DirectPostJWTResult is what ParseDirectPostJWTResponse recovers from
// a direct_post.jwt body: the decoded parameters plus, when the body was
// encrypted, the mdoc_generated_nonce carried in the JWE "apu" header.
type DirectPostJWTResult struct {
	Params             url.Values
	MdocGeneratedNonce string
	Encrypted          bool
}

// ParseDirectPostJWTResponse unwraps a ResponseModeDirectPostJWT body: a
// compact JWE (5 segments) is decrypted via decrypt (typically
// jose.Engine.DecryptECDHES bound to the verifier's key), recovering
// apu as the mdoc_generated_nonce; a compact JWS (3 segments) is
// verified against resolver and its payload treated as the
// form-encoded parameter set.
func ParseDirectPostJWTResponse(jwsEngine *jose.Engine, token string, resolver jose.KeyResolver, decrypt func(token string) ([]byte, jose.Header, error)) (*DirectPostJWTResult, error) {
	segments := strings.Count(token, ".") + 1
	switch segments {
	case 5:
		pt, header, err := decrypt(token)
		if err != nil {
			return nil, err
		}
		params, err := url.ParseQuery(string(pt))
		if err != nil {
			return nil, vcerr.Parse("openid4vp: invalid direct_post.jwt plaintext").Wrap(err)
		}
		apu, _ := header["apu"].(string)
		var mgn string
		if apu != "" {
			if b, err := codec.B64URLDecode(apu); err == nil {
				mgn = string(b)
			}
		}
		return &DirectPostJWTResult{Params: params, MdocGeneratedNonce: mgn, Encrypted: true}, nil
	case 3:
		jws, err := jwsEngine.Verify(token, resolver)
		if err != nil {
			return nil, err
		}
		params, err := url.ParseQuery(string(jws.Payload))
		if err != nil {
			return nil, vcerr.Parse("openid4vp: invalid direct_post.jwt payload").Wrap(err)
		}
		return &DirectPostJWTResult{Params: params}, nil
	default:
		return nil, vcerr.Parse("openid4vp: direct_post.jwt token has %d segments, expected 3 or 5", segments)
	}
}
