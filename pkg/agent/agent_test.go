package agent

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/mdoc"
	"github.com/pilacorp/vc-engine/pkg/openid4vp"
	"github.com/pilacorp/vc-engine/pkg/sdjwt"
	"github.com/pilacorp/vc-engine/pkg/status"
	"github.com/pilacorp/vc-engine/pkg/vckey"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
)

type agents struct {
	issuerKM *vckey.KeyMaterial
	issuer   *Issuer
	holder   *Holder
	verifier *Verifier
}

func newAgents(t *testing.T) *agents {
	t.Helper()
	jws := jose.New()

	issuerKM, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	holderKM, err := vckey.New(vckey.RoleHolder, vckey.AlgES256)
	require.NoError(t, err)
	verifierKM, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)

	return &agents{
		issuerKM: issuerKM,
		issuer:   NewIssuer(issuerKM, jws),
		holder:   NewHolder(holderKM, jws),
		verifier: NewVerifier(verifierKM, jws),
	}
}

func (a *agents) issueAtomicVCJWT(t *testing.T, credStatus codec.ClaimSet) string {
	t.Helper()
	issuerID, err := a.issuerKM.SelfID()
	require.NoError(t, err)
	holderID, err := a.holder.KeyMaterial().SelfID()
	require.NoError(t, err)

	token, err := a.issuer.IssueVCJWT(vcjwt.CredentialContents{
		Context:   []interface{}{"https://www.w3.org/ns/credentials/v2"},
		ID:        "urn:uuid:cred-1",
		Type:      []string{"VerifiableCredential", "AtomicAttribute2023"},
		Issuer:    issuerID,
		ValidFrom: time.Now().Add(-time.Hour).Truncate(time.Second),
		ValidUntil: time.Now().Add(time.Hour).Truncate(time.Second),
		CredentialSubject: codec.ClaimSet{
			"id":         holderID,
			"given-name": "Erika",
		},
		CredentialStatus: credStatus,
	})
	require.NoError(t, err)
	return token
}

// A VC-JWT issued to the holder round-trips through a fragment-mode
// presentation and validates.
func TestVCJWTFragmentHappyPath(t *testing.T) {
	a := newAgents(t)
	token := a.issueAtomicVCJWT(t, nil)
	require.NoError(t, a.holder.Store(&StoredCredential{ID: "cred-1", Format: FormatVCJWT, VCJWT: token}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.RedirectURI("https://verifier.example/cb"),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)

	params, err := a.holder.PresentVCJWT("cred-1", "atomic", req.Params)
	require.NoError(t, err)

	redirected := "https://verifier.example/cb#" + params.Encode()
	received, err := openid4vp.ParseFragmentResponse(redirected)
	require.NoError(t, err)

	result, err := a.verifier.Protocol().ValidateResponse(received, openid4vp.ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: a.issuerKM.PublicKey()},
		Leeway:      time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, req.Params.State, result.State)
	require.Len(t, result.Descriptors, 1)
	require.NoError(t, result.Descriptors[0].Err)

	claims := result.Descriptors[0].Claims.(codec.ClaimSet)
	subject := claims["credentialSubject"].(map[string]interface{})
	assert.Equal(t, "Erika", subject["given-name"])
}

func (a *agents) issueSelectiveSDJWT(t *testing.T) *IssuedSDJWT {
	t.Helper()
	issuerID, err := a.issuerKM.SelfID()
	require.NoError(t, err)

	issued, err := a.issuer.IssueSDJWT(SDJWTInput{
		Issuer:    issuerID,
		ID:        "urn:uuid:cred-2",
		Type:      []string{"VerifiableCredential"},
		ValidFrom: time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		Selective: []sdjwt.Selective{
			{Name: "given-name", Value: "Erika"},
			{Name: "family-name", Value: "Mustermann"},
			{Name: "age-over-18", Value: true},
		},
		HolderKey: a.holder.KeyMaterial(),
	})
	require.NoError(t, err)
	return issued
}

// Presenting a single disclosure reveals that claim and nothing else.
func TestSDJWTSelectiveDisclosure(t *testing.T) {
	a := newAgents(t)
	issued := a.issueSelectiveSDJWT(t)
	require.NoError(t, a.holder.Store(&StoredCredential{ID: "cred-2", Format: FormatSDJWT, SDJWT: issued.Combined}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.PreRegistered("https://verifier.example/rp1", ""),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/rp1",
	})
	require.NoError(t, err)

	params, err := a.holder.PresentSDJWT("cred-2", "age", []string{"age-over-18"}, req.Params)
	require.NoError(t, err)

	result, err := a.verifier.Protocol().ValidateResponse(params, openid4vp.ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: a.issuerKM.PublicKey()},
		Leeway:      time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 1)
	require.NoError(t, result.Descriptors[0].Err)

	claims := result.Descriptors[0].Claims.(codec.ClaimSet)
	assert.Equal(t, true, claims["age-over-18"])
	assert.NotContains(t, claims, "given-name")
	assert.NotContains(t, claims, "family-name")
}

// An mdoc presented over direct_post.jwt with an encrypted response; the
// mdoc-generated nonce travels in the JWE apu header and feeds the
// session transcript on both sides.
func TestMdocDirectPostJWTEncrypted(t *testing.T) {
	a := newAgents(t)

	issuerSigned, err := a.issuer.IssueMdoc(mdoc.IssueInput{
		DocType: "org.iso.18013.5.1.mDL",
		Namespaces: []mdoc.NamespaceClaims{{
			Namespace: "org.iso.18013.5.1",
			Elements: []mdoc.ElementClaim{
				{Identifier: "given_name", Value: "Erika"},
				{Identifier: "age_over_18", Value: true},
			},
		}},
		DeviceKey: a.holder.KeyMaterial().PublicKey().(*ecdsa.PublicKey),
		ValidFrom: mdoc.ValidityInfo{
			Signed:     time.Now().UTC().Truncate(time.Second),
			ValidFrom:  time.Now().UTC().Truncate(time.Second),
			ValidUntil: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.holder.Store(&StoredCredential{
		ID: "cred-3", Format: FormatMdoc,
		IssuerSigned: issuerSigned, DocType: "org.iso.18013.5.1.mDL",
	}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.PreRegistered("https://verifier.example/rp2", ""),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeDirectPostJWT,
		ResponseURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)

	pres, err := a.holder.PresentMdoc(MdocPresentInput{
		CredentialID: "cred-3",
		DescriptorID: "mdl",
		EncryptTo:    a.verifier.KeyMaterial().PublicKey().(*ecdsa.PublicKey),
		Enc:          vckey.AEADA256GCM,
	}, req.Params)
	require.NoError(t, err)
	require.NotEmpty(t, pres.ResponseJWE)
	require.NotEmpty(t, pres.MdocGeneratedNonce)

	unwrapped, err := a.verifier.DecryptResponse(pres.ResponseJWE, nil)
	require.NoError(t, err)
	assert.True(t, unwrapped.Encrypted)
	assert.Equal(t, pres.MdocGeneratedNonce, unwrapped.MdocGeneratedNonce)

	result, err := a.verifier.Protocol().ValidateResponse(unwrapped.Params, openid4vp.ValidateOptions{
		MdocIssuerKey: func(mdoc.DocType) (interface{}, error) {
			return a.issuerKM.PublicKey(), nil
		},
		MdocGeneratedNonce: unwrapped.MdocGeneratedNonce,
		Leeway:             time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 1)
	require.NoError(t, result.Descriptors[0].Err)

	values := result.Descriptors[0].Claims.(map[mdoc.NameSpace]map[mdoc.ElementIdentifier]mdoc.ElementValue)
	assert.Equal(t, "Erika", values["org.iso.18013.5.1"]["given_name"])
}

// A key-binding JWT carrying the wrong nonce fails exactly
// that descriptor.
func TestSDJWTWrongChallengeFailsDescriptor(t *testing.T) {
	a := newAgents(t)
	issued := a.issueSelectiveSDJWT(t)
	require.NoError(t, a.holder.Store(&StoredCredential{ID: "cred-4", Format: FormatSDJWT, SDJWT: issued.Combined}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.PreRegistered("https://verifier.example/rp1", ""),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/rp1",
	})
	require.NoError(t, err)

	presentation, err := a.holder.BuildSDJWTPresentation("cred-4", []string{"age-over-18"}, req.Params.ClientID, reverse(req.Params.Nonce))
	require.NoError(t, err)
	params, err := responseParams(req.Params, presentation, submissionFor("age", FormatSDJWT))
	require.NoError(t, err)

	result, err := a.verifier.Protocol().ValidateResponse(params, openid4vp.ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: a.issuerKM.PublicKey()},
		Leeway:      time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 1)
	assert.Error(t, result.Descriptors[0].Err)
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// A revoked credential still validates cryptographically;
// revocation surfaces as an orthogonal flag.
func TestRevokedVCValidatesButFlagsRevocation(t *testing.T) {
	a := newAgents(t)

	bits := make([]bool, 128)
	bits[42] = true
	encoded, err := status.BuildList(bits)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := codec.MarshalJSON(status.ListCredentialResponse{
			Data: status.ListCredential{
				ID:   "https://issuer.example/status/1",
				Type: []string{"VerifiableCredential", "BitstringStatusListCredential"},
				CredentialSubject: status.ListCredentialSubject{
					ID:            "https://issuer.example/status/1#list",
					Type:          "BitstringStatusList",
					StatusPurpose: status.PurposeRevocation,
					EncodedList:   encoded,
				},
			},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	token := a.issueAtomicVCJWT(t, codec.ClaimSet{
		"id":                   srv.URL + "#42",
		"type":                 "BitstringStatusListEntry",
		"statusPurpose":        "revocation",
		"statusListIndex":      "42",
		"statusListCredential": srv.URL,
	})
	require.NoError(t, a.holder.Store(&StoredCredential{ID: "cred-5", Format: FormatVCJWT, VCJWT: token}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.RedirectURI("https://verifier.example/cb"),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)

	params, err := a.holder.PresentVCJWT("cred-5", "atomic", req.Params)
	require.NoError(t, err)

	verified, err := a.verifier.ValidateAndCheckStatus(context.Background(), params, openid4vp.ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: a.issuerKM.PublicKey()},
		Leeway:      time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, verified.Response.Descriptors, 1)
	require.NoError(t, verified.Response.Descriptors[0].Err)

	require.Len(t, verified.Revocations, 1)
	assert.True(t, verified.Revocations[0].Checked)
	require.NoError(t, verified.Revocations[0].Err)
	assert.True(t, verified.Revocations[0].Revoked)
}

// A signed request by reference verifies against the x5c
// leaf and is rejected when the certificate's SAN does not cover
// client_id.
func TestSignedRequestByReferenceSANCheck(t *testing.T) {
	a := newAgents(t)

	verifierKM := a.verifier.KeyMaterial()
	require.NoError(t, verifierKM.SelfSignCertificate("verifier.example", []string{"verifier.example"}, time.Hour))
	chain := [][]byte{verifierKM.Certificate().Raw}

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.CertificateSanDNS("verifier.example", chain),
		Mode:         openid4vp.ModeSignedRequestByReference,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeDirectPost,
		ResponseURI:  "https://verifier.example/cb",
		RequestURI:   "https://verifier.example/jar/1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, req.JAR)
	assert.Equal(t, "https://verifier.example/jar/1", req.QueryParams.Get("request_uri"))

	served := map[string]string{"https://verifier.example/jar/1": req.JAR}
	fetchJAR := func(uri string) (string, error) { return served[uri], nil }

	params, err := a.holder.ResolveSignedRequest(fetchJAR, "https://verifier.example/jar/1", openid4vp.RequestObjectVerifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "verifier.example", params.ClientID)
	assert.Equal(t, req.Params.Nonce, params.Nonce)

	// A leaf whose SAN names a different host must be rejected even
	// though the signature itself verifies.
	otherKM, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)
	require.NoError(t, otherKM.SelfSignCertificate("other.example", []string{"other.example"}, time.Hour))
	other := NewVerifier(otherKM, jose.New())

	badReq, err := other.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.CertificateSanDNS("verifier.example", [][]byte{otherKM.Certificate().Raw}),
		Mode:         openid4vp.ModeSignedRequestByReference,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeDirectPost,
		ResponseURI:  "https://verifier.example/cb",
		RequestURI:   "https://verifier.example/jar/2",
	})
	require.NoError(t, err)

	served["https://verifier.example/jar/2"] = badReq.JAR
	_, err = a.holder.ResolveSignedRequest(fetchJAR, "https://verifier.example/jar/2", openid4vp.RequestObjectVerifyOptions{})
	assert.Error(t, err)
}

// The SIOPv2 id_token path: iss==sub==thumbprint(sub_jwk), aud and
// nonce echoing the request.
func TestSelfIssuedIDToken(t *testing.T) {
	a := newAgents(t)

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.RedirectURI("https://verifier.example/cb"),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"id_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)

	idToken, err := a.holder.SelfIssuedIDToken(req.Params, time.Hour)
	require.NoError(t, err)

	params := url.Values{
		"id_token": {idToken},
		"state":    {req.Params.State},
	}
	result, err := a.verifier.Protocol().ValidateResponse(params, openid4vp.ValidateOptions{Leeway: time.Minute})
	require.NoError(t, err)
	require.NotNil(t, result.IDToken)

	thumbprint, err := a.holder.KeyMaterial().Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, thumbprint, result.IDToken.Subject)
}

// Consuming a response consumes its state: a replay of the same
// parameters must fail the state lookup.
func TestResponseStateIsSingleUse(t *testing.T) {
	a := newAgents(t)
	token := a.issueAtomicVCJWT(t, nil)
	require.NoError(t, a.holder.Store(&StoredCredential{ID: "cred-7", Format: FormatVCJWT, VCJWT: token}))

	req, err := a.verifier.Protocol().CreateRequest(openid4vp.RequestInput{
		ClientID:     openid4vp.RedirectURI("https://verifier.example/cb"),
		Mode:         openid4vp.ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: openid4vp.ResponseModeFragment,
		RedirectURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)

	params, err := a.holder.PresentVCJWT("cred-7", "atomic", req.Params)
	require.NoError(t, err)

	opts := openid4vp.ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: a.issuerKM.PublicKey()},
		Leeway:      time.Minute,
	}
	_, err = a.verifier.Protocol().ValidateResponse(params, opts)
	require.NoError(t, err)

	_, err = a.verifier.Protocol().ValidateResponse(params, opts)
	assert.Error(t, err)
}
