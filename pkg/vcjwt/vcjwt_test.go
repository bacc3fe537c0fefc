package vcjwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/timeutil"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func testContents() CredentialContents {
	return CredentialContents{
		Context:           []interface{}{"https://www.w3.org/ns/credentials/v2"},
		ID:                "urn:uuid:11111111-1111-1111-1111-111111111111",
		Type:              []string{"VerifiableCredential"},
		Issuer:             "did:key:zIssuer",
		ValidFrom:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:        time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		CredentialSubject: codec.ClaimSet{"id": "did:key:zHolder", "name": "Alice"},
	}
}

func TestBuildParseVerifyRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	engine := jose.New()

	token, err := Build(engine, km, testContents())
	require.NoError(t, err)

	p, err := Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "did:key:zIssuer", p.Issuer)
	assert.Equal(t, "did:key:zHolder", p.Subject)

	clock := timeutil.Fixed(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	verified, err := Verify(engine, token, jose.StaticResolver{Key: km.PublicKey()}, clock, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, p.ID, verified.ID)
}

func TestVerifyRejectsExpiredCredential(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	engine := jose.New()

	token, err := Build(engine, km, testContents())
	require.NoError(t, err)

	clock := timeutil.Fixed(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err = Verify(engine, token, jose.StaticResolver{Key: km.PublicKey()}, clock, time.Minute)
	assert.Error(t, err)
}
