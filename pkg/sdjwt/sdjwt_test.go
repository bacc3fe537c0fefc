package sdjwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func TestBuildAndResolveDisclosedClaims(t *testing.T) {
	always := codec.ClaimSet{"iss": "issuer-1", "vct": "IDCard"}
	selective := []Selective{
		{Name: "given_name", Value: "Alice"},
		{Name: "birthdate", Value: "1990-01-01"},
	}

	claims, disclosures, err := BuildClaims(always, selective, vckey.DigestSHA256)
	require.NoError(t, err)
	require.Len(t, disclosures, 2)
	assert.Equal(t, "IDCard", claims["vct"])
	assert.NotNil(t, claims[sdKey])
	assert.Equal(t, "sha-256", claims[sdAlgKey])

	resolved, err := ResolveDisclosed(claims, disclosures)
	require.NoError(t, err)
	assert.Equal(t, "Alice", resolved["given_name"])
	assert.Equal(t, "1990-01-01", resolved["birthdate"])
	assert.Equal(t, "issuer-1", resolved["iss"])
	_, hasSD := resolved[sdKey]
	assert.False(t, hasSD)
}

func TestResolveDisclosedRejectsMismatchedDisclosure(t *testing.T) {
	claims, disclosures, err := BuildClaims(codec.ClaimSet{}, []Selective{{Name: "x", Value: 1}}, vckey.DigestSHA256)
	require.NoError(t, err)

	forged, err := NewClaimDisclosure("x", 2)
	require.NoError(t, err)

	_, err = ResolveDisclosed(claims, append([]*Disclosure{}, forged))
	assert.Error(t, err)
	_ = disclosures
}

func TestCombineAndSplitIssuance(t *testing.T) {
	_, disclosures, err := BuildClaims(codec.ClaimSet{}, []Selective{{Name: "a", Value: 1}}, vckey.DigestSHA256)
	require.NoError(t, err)

	combined := Combine("header.payload.sig", disclosures)
	sdJWT, parsed, err := SplitIssuance(combined)
	require.NoError(t, err)
	assert.Equal(t, "header.payload.sig", sdJWT)
	require.Len(t, parsed, 1)
	assert.Equal(t, "a", parsed[0].Name)
}

func TestKeyBindingJWTRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleHolder, vckey.AlgES256)
	require.NoError(t, err)

	engine := jose.New()
	sdJWT := "header.payload.sig"
	_, disclosures, err := BuildClaims(codec.ClaimSet{}, []Selective{{Name: "a", Value: 1}}, vckey.DigestSHA256)
	require.NoError(t, err)

	sdHash, err := ComputeSDHash(sdJWT, disclosures, vckey.DigestSHA256)
	require.NoError(t, err)

	kbJWT, err := BuildKeyBindingJWT(engine, km, KeyBindingClaims{
		Nonce: "n-1", Audience: "verifier-1", IssuedAt: 1000, SDHash: sdHash,
	})
	require.NoError(t, err)

	claims, err := VerifyKeyBindingJWT(engine, kbJWT, jose.StaticResolver{Key: km.PublicKey()}, sdJWT, disclosures, vckey.DigestSHA256, "verifier-1", "n-1")
	require.NoError(t, err)
	assert.Equal(t, sdHash, claims.SDHash)
}
