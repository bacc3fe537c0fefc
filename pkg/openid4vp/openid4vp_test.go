package openid4vp

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vckey"
	"github.com/pilacorp/vc-engine/pkg/vcjwt"
)

func TestCreateRequestQueryMode(t *testing.T) {
	km, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)
	v := NewVerifier(km, jose.New())

	req, err := v.CreateRequest(RequestInput{
		ClientID:     RedirectURI("https://verifier.example/cb"),
		Mode:         ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: ResponseModeDirectPost,
		ResponseURI:  "https://verifier.example/cb",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.Params.Nonce)
	assert.NotEmpty(t, req.Params.State)
	assert.Equal(t, req.Params.Nonce, req.QueryParams.Get("nonce"))

	stored, ok := v.LookupState(req.Params.State)
	require.True(t, ok)
	assert.Equal(t, req.Params.Nonce, stored.Nonce)
}

func TestCertificateSanDNSForbidsQueryMode(t *testing.T) {
	km, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)
	v := NewVerifier(km, jose.New())

	_, err = v.CreateRequest(RequestInput{
		ClientID:     CertificateSanDNS("verifier.example", [][]byte{{0x01}}),
		Mode:         ModeQuery,
		ResponseType: []string{"vp_token"},
	})
	assert.Error(t, err)
}

func TestCreateRequestSignedByValue(t *testing.T) {
	km, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)
	v := NewVerifier(km, jose.New())

	req, err := v.CreateRequest(RequestInput{
		ClientID:     CertificateSanDNS("verifier.example", [][]byte{{0x01, 0x02}}),
		Mode:         ModeSignedRequestByValue,
		ResponseType: []string{"vp_token"},
		ResponseMode: ResponseModeDirectPostJWT,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.JAR)
	assert.Equal(t, req.JAR, req.QueryParams.Get("request"))
}

func TestEvaluateSubmissionRequirementsPick(t *testing.T) {
	pd := &PresentationDefinition{
		ID: "pd1",
		InputDescriptors: []InputDescriptor{
			{ID: "a", Group: []string{"g1"}},
			{ID: "b", Group: []string{"g1"}},
			{ID: "c", Group: []string{"g1"}},
		},
		SubmissionRequirements: []SubmissionRequirement{
			{Rule: SelectionPick, Count: 1, From: "g1"},
		},
	}

	err := EvaluateSubmissionRequirements(pd, map[string]bool{"a": true})
	assert.NoError(t, err)

	err = EvaluateSubmissionRequirements(pd, map[string]bool{})
	assert.Error(t, err)
}

func TestEvaluateSubmissionRequirementsAll(t *testing.T) {
	pd := &PresentationDefinition{
		ID: "pd1",
		InputDescriptors: []InputDescriptor{
			{ID: "a", Group: []string{"g1"}},
			{ID: "b", Group: []string{"g1"}},
		},
		SubmissionRequirements: []SubmissionRequirement{
			{Rule: SelectionAll, From: "g1"},
		},
	}

	assert.NoError(t, EvaluateSubmissionRequirements(pd, map[string]bool{"a": true, "b": true}))
	assert.Error(t, EvaluateSubmissionRequirements(pd, map[string]bool{"a": true}))
}

func TestMatchCandidateWithFilter(t *testing.T) {
	descriptor := InputDescriptor{
		ID: "age",
		Constraints: Constraints{
			Fields: []PathField{
				{Path: []string{"$.age_over_18"}, Filter: &Filter{Type: "boolean"}},
			},
		},
	}
	ok, err := MatchCandidate(descriptor, map[string]interface{}{"age_over_18": true})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchCandidate(descriptor, map[string]interface{}{"age_over_18": "yes"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateResponseJWTVCDescriptor(t *testing.T) {
	issuer, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	verifierKM, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)

	jwsEngine := jose.New()
	v := NewVerifier(verifierKM, jwsEngine)

	req, err := v.CreateRequest(RequestInput{
		ClientID:     RedirectURI("https://verifier.example/cb"),
		Mode:         ModeQuery,
		ResponseType: []string{"vp_token"},
		ResponseMode: ResponseModeDirectPost,
		ResponseURI:  "https://verifier.example/cb",
		PresentationDefinition: &PresentationDefinition{
			ID: "pd1",
			InputDescriptors: []InputDescriptor{
				{ID: "cred1", Format: Format{JwtVC: &AlgConstraint{Alg: []string{"ES256"}}}},
			},
		},
	})
	require.NoError(t, err)

	token, err := vcjwt.Build(jwsEngine, issuer, vcjwt.CredentialContents{
		Context:           []interface{}{"https://www.w3.org/ns/credentials/v2"},
		ID:                "urn:uuid:cred-1",
		Type:              []string{"VerifiableCredential"},
		Issuer:            "did:key:issuer",
		ValidFrom:         time.Now().Add(-time.Hour),
		ValidUntil:        time.Now().Add(time.Hour),
		CredentialSubject: codec.ClaimSet{"id": "did:key:holder", "given_name": "Erika"},
	})
	require.NoError(t, err)

	tokenJSON, err := codec.MarshalJSON(token)
	require.NoError(t, err)
	submission := PresentationSubmission{
		ID:           "sub1",
		DefinitionID: "pd1",
		DescriptorMap: []DescriptorMapEntry{
			{ID: "cred1", Format: "jwt_vc", Path: "$"},
		},
	}
	submissionJSON, err := codec.MarshalJSON(submission)
	require.NoError(t, err)

	params := url.Values{
		"state":                   {req.Params.State},
		"vp_token":                {string(tokenJSON)},
		"presentation_submission": {string(submissionJSON)},
	}

	result, err := v.ValidateResponse(params, ValidateOptions{
		KeyResolver: jose.StaticResolver{Key: issuer.PublicKey()},
		Leeway:      time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, result.Descriptors, 1)
	require.NoError(t, result.Descriptors[0].Err)

	claims, ok := result.Descriptors[0].Claims.(codec.ClaimSet)
	require.True(t, ok)
	assert.Equal(t, "Erika", claims["credentialSubject"].(map[string]interface{})["given_name"])

	_, stillThere := v.LookupState(req.Params.State)
	assert.False(t, stillThere)
}

func TestValidateResponseUnknownStateFails(t *testing.T) {
	km, err := vckey.New(vckey.RoleVerifier, vckey.AlgES256)
	require.NoError(t, err)
	v := NewVerifier(km, jose.New())

	_, err = v.ValidateResponse(url.Values{"state": {"does-not-exist"}}, ValidateOptions{})
	assert.Error(t, err)
}
