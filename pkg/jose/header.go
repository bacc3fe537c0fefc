// Package jose implements compact JWS (RFC 7515) and compact JWE (RFC
// 7516) over pkg/vckey's signature and AEAD primitives. It is the
// engine's only place that builds or parses the five-segment and
// three-segment compact serializations VC-JWT, SD-JWT, and
// OpenID4VP's signed request objects all share.
package jose

import (
	"crypto/x509"

	josejwk "github.com/go-jose/go-jose/v3"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Header is a JOSE protected or unprotected header.
type Header = codec.ClaimSet

// KeyResolver turns a parsed JWS/JWE header into the public key that
// should verify/decrypt it. Each implementation below handles one
// header source (a fixed key, "kid", an embedded "jwk", an "x5c" leaf
// certificate, a "jku" JWK Set URL); ChainResolver combines them in the
// order the caller lists. The package applies no resolution order of
// its own.
type KeyResolver interface {
	ResolveKey(header Header) (interface{}, error)
}

// StaticResolver resolves every header against one fixed public key,
// useful for tests and for the single-issuer-key agent flows.
type StaticResolver struct{ Key interface{} }

func (r StaticResolver) ResolveKey(Header) (interface{}, error) { return r.Key, nil }

// KidResolver resolves "kid" against a lookup function; agents hand in
// their trusted-issuer-key map this way.
type KidResolver func(kid string) (interface{}, error)

func (r KidResolver) ResolveKey(h Header) (interface{}, error) {
	kid, _ := h["kid"].(string)
	if kid == "" {
		return nil, vcerr.UnknownKey("jose: header has no kid")
	}
	return r(kid)
}

// EmbeddedJWKResolver trusts a "jwk" header field outright. Callers
// should combine it with a separate trust decision (e.g. a pinned
// issuer certificate or a key-binding check) rather than use it alone
// against an untrusted party, since an attacker controls that header.
type EmbeddedJWKResolver struct{}

func (EmbeddedJWKResolver) ResolveKey(h Header) (interface{}, error) {
	raw, ok := h["jwk"]
	if !ok {
		return nil, vcerr.UnknownKey("jose: header has no embedded jwk")
	}
	b, err := codec.MarshalJSON(raw)
	if err != nil {
		return nil, err
	}
	var jwk josejwk.JSONWebKey
	if err := jwk.UnmarshalJSON(b); err != nil {
		return nil, vcerr.Parse("jose: invalid embedded jwk").Wrap(err)
	}
	return jwk.Key, nil
}

// X5CResolver trusts the leaf certificate of an "x5c" header chain
// against a caller-supplied root pool, the x509_san_dns client-id
// scheme's trust path.
type X5CResolver struct{ Roots *x509.CertPool }

func (r X5CResolver) ResolveKey(h Header) (interface{}, error) {
	raw, ok := h["x5c"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, vcerr.UnknownKey("jose: header has no x5c chain")
	}
	certs := make([]*x509.Certificate, 0, len(raw))
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok {
			return nil, vcerr.Parse("jose: x5c entry is not a string")
		}
		der, err := codec.B64URLDecode(s)
		if err != nil {
			// x5c per RFC 7515 section 4.1.6 uses standard (padded) base64,
			// not base64url; retry with the standard alphabet.
			der, err = stdB64Decode(s)
			if err != nil {
				return nil, vcerr.Parse("jose: invalid x5c entry").Wrap(err)
			}
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, vcerr.Parse("jose: invalid x5c certificate").Wrap(err)
		}
		certs = append(certs, cert)
	}
	if r.Roots != nil {
		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}
		if _, err := certs[0].Verify(x509.VerifyOptions{Roots: r.Roots, Intermediates: intermediates}); err != nil {
			return nil, vcerr.InvalidSignature("jose: x5c chain does not chain to a trusted root").Wrap(err)
		}
	}
	return certs[0].PublicKey, nil
}

// JKUResolver fetches a JWK Set from the header's "jku" URL with a
// caller-injected fetch function (typically pkg/fetch bound to a
// context) and selects the entry matching the header's "kid", or the
// sole entry when the set holds exactly one key.
type JKUResolver struct {
	Fetch func(url string) ([]byte, error)
}

func (r JKUResolver) ResolveKey(h Header) (interface{}, error) {
	jku, _ := h["jku"].(string)
	if jku == "" {
		return nil, vcerr.UnknownKey("jose: header has no jku")
	}
	body, err := r.Fetch(jku)
	if err != nil {
		return nil, vcerr.Fetch("jose: fetch jwk set from %s", jku).Wrap(err)
	}
	var set josejwk.JSONWebKeySet
	if err := codec.UnmarshalJSON(body, &set); err != nil {
		return nil, vcerr.Parse("jose: invalid jwk set at %s", jku).Wrap(err)
	}
	if kid, _ := h["kid"].(string); kid != "" {
		for _, k := range set.Key(kid) {
			return k.Key, nil
		}
		return nil, vcerr.UnknownKey("jose: jwk set at %s has no key %q", jku, kid)
	}
	if len(set.Keys) == 1 {
		return set.Keys[0].Key, nil
	}
	return nil, vcerr.UnknownKey("jose: jwk set at %s is ambiguous without a kid", jku)
}

// ChainResolver tries each resolver in the order the caller lists them
// and returns the first success; it does not reorder its entries.
type ChainResolver []KeyResolver

func (c ChainResolver) ResolveKey(h Header) (interface{}, error) {
	var lastErr error
	for _, r := range c {
		key, err := r.ResolveKey(h)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = vcerr.UnknownKey("jose: no resolver configured")
	}
	return nil, lastErr
}
