package vckey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	"time"

	josejwk "github.com/go-jose/go-jose/v3"
	"github.com/multiformats/go-multibase"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Role names the agent a KeyMaterial belongs to; each role holds one
// active key at a time.
type Role string

const (
	RoleIssuer   Role = "issuer"
	RoleHolder   Role = "holder"
	RoleVerifier Role = "verifier"
)

// KeyMaterial owns one signature private key and projects it into
// several views: the raw key, a JWK, its thumbprint and did:key
// identifiers, and (optionally) a self-signed X.509 certificate. It
// stores the raw key and, once issued, the certificate; the JWK and
// identifier views are derived on demand so they can never drift apart.
// The COSE_Key form is not a KeyMaterial view; pkg/mdoc encodes it from
// the public key.
type KeyMaterial struct {
	role Role
	alg  Alg
	priv *ecdsa.PrivateKey // nil when rsaPriv is set
	rsaPriv *rsa.PrivateKey
	cert *x509.Certificate
}

// New generates a fresh KeyMaterial for role on the given JOSE algorithm.
// Only ES256/ES384/ES512/RS256/PS256 are supported; ES256K keys are
// constructed separately via NewLegacyES256K for the compatibility
// paths in legacy.go.
func New(role Role, alg Alg) (*KeyMaterial, error) {
	switch alg {
	case AlgES256:
		return newEC(role, alg, elliptic.P256())
	case AlgES384:
		return newEC(role, alg, elliptic.P384())
	case AlgES512:
		return newEC(role, alg, elliptic.P521())
	case AlgRS256, AlgPS256:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, vcerr.Usage("generate rsa key").Wrap(err)
		}
		return &KeyMaterial{role: role, alg: alg, rsaPriv: priv}, nil
	default:
		return nil, vcerr.Usage("vckey.New: unsupported algorithm %s", alg)
	}
}

func newEC(role Role, alg Alg, curve elliptic.Curve) (*KeyMaterial, error) {
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, vcerr.Usage("generate ecdsa key").Wrap(err)
	}
	return &KeyMaterial{role: role, alg: alg, priv: priv}, nil
}

// FromECDSA wraps an existing P-256/P-384/P-521 private key, used when
// importing test fixtures or a pre-provisioned issuer key.
func FromECDSA(role Role, priv *ecdsa.PrivateKey) (*KeyMaterial, error) {
	alg, err := algForCurve(priv.Curve)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{role: role, alg: alg, priv: priv}, nil
}

func algForCurve(curve elliptic.Curve) (Alg, error) {
	switch curve {
	case elliptic.P256():
		return AlgES256, nil
	case elliptic.P384():
		return AlgES384, nil
	case elliptic.P521():
		return AlgES512, nil
	default:
		return "", vcerr.Usage("unsupported curve for JOSE/COSE signing")
	}
}

// Role returns the owning agent's role.
func (k *KeyMaterial) Role() Role { return k.role }

// Alg returns the JOSE/COSE algorithm identifier for this key.
func (k *KeyMaterial) Alg() Alg { return k.alg }

// PrivateKey returns the raw private key as crypto.Signer-compatible
// material (either *ecdsa.PrivateKey or *rsa.PrivateKey).
func (k *KeyMaterial) PrivateKey() interface{} {
	if k.rsaPriv != nil {
		return k.rsaPriv
	}
	return k.priv
}

// PublicKey returns the raw public key.
func (k *KeyMaterial) PublicKey() interface{} {
	if k.rsaPriv != nil {
		return &k.rsaPriv.PublicKey
	}
	return &k.priv.PublicKey
}

// JWK projects the public key as a JSON Web Key (RFC 7517).
func (k *KeyMaterial) JWK() josejwk.JSONWebKey {
	return josejwk.JSONWebKey{Key: k.PublicKey(), Algorithm: string(k.alg), Use: "sig"}
}

// Thumbprint computes the RFC 7638 JWK thumbprint, used as the `cnf.jwk`
// holder-key identifier and as the fallback self-identifier for keys
// with no did:key form.
func (k *KeyMaterial) Thumbprint() (string, error) {
	jwk := k.JWK()
	b, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", vcerr.Usage("compute jwk thumbprint").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DIDKey projects the public key as a did:key identifier (multicodec +
// multibase base58btc). Only EC P-256/P-384/P-521 keys are supported;
// RSA keys have no
// did:key multicodec under the module's scope and fall back to the
// thumbprint form at the call site.
func (k *KeyMaterial) DIDKey() (string, error) {
	if k.priv == nil {
		return "", vcerr.Usage("did:key projection requires an EC key")
	}
	codec, err := multicodecFor(k.priv.Curve)
	if err != nil {
		return "", err
	}
	compressed := elliptic.MarshalCompressed(k.priv.Curve, k.priv.X, k.priv.Y)

	varintPrefix := make([]byte, 2)
	n := binary.PutUvarint(varintPrefix, codec)
	payload := append(varintPrefix[:n], compressed...)

	encoded, err := multibase.Encode(multibase.Base58BTC, payload)
	if err != nil {
		return "", vcerr.Usage("multibase encode").Wrap(err)
	}
	return "did:key:" + encoded, nil
}

// multicodec values from the multicodec table (p256-pub=0x1200,
// p384-pub=0x1201, p521-pub=0x1202).
func multicodecFor(curve elliptic.Curve) (uint64, error) {
	switch curve {
	case elliptic.P256():
		return 0x1200, nil
	case elliptic.P384():
		return 0x1201, nil
	case elliptic.P521():
		return 0x1202, nil
	default:
		return 0, vcerr.Usage("no did:key multicodec for this curve")
	}
}

// SelfID returns the preferred self-identifier: did:key when the key is
// EC, otherwise the JWK thumbprint.
func (k *KeyMaterial) SelfID() (string, error) {
	if k.priv != nil {
		return k.DIDKey()
	}
	return k.Thumbprint()
}

// SelfSignCertificate issues a self-signed X.509 certificate over this
// key's public half. dnsNames populate the SAN dNSName entries the
// x509_san_dns client-id scheme relies on.
func (k *KeyMaterial) SelfSignCertificate(subjectCN string, dnsNames []string, validFor time.Duration) error {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return vcerr.Usage("generate certificate serial").Wrap(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: subjectCN},
		DNSNames:              dnsNames,
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, k.PublicKey(), k.PrivateKey())
	if err != nil {
		return vcerr.Usage("self-sign certificate").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return vcerr.Usage("parse self-signed certificate").Wrap(err)
	}
	k.cert = cert
	return nil
}

// Certificate returns the self-signed certificate, if any.
func (k *KeyMaterial) Certificate() *x509.Certificate { return k.cert }

// PublicView returns a cloned KeyMaterial exposing only the public key,
// safe to hand to another agent.
func (k *KeyMaterial) PublicView() *KeyMaterial {
	clone := &KeyMaterial{role: k.role, alg: k.alg, cert: k.cert}
	if k.priv != nil {
		clone.priv = &ecdsa.PrivateKey{PublicKey: k.priv.PublicKey}
	}
	if k.rsaPriv != nil {
		clone.rsaPriv = &rsa.PrivateKey{PublicKey: k.rsaPriv.PublicKey}
	}
	return clone
}
