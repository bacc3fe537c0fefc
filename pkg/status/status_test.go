package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/jose"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func TestBuildListAndIsRevoked(t *testing.T) {
	bits := make([]bool, 64)
	bits[0] = true
	bits[42] = true

	encoded, err := BuildList(bits)
	require.NoError(t, err)

	subject := ListCredentialSubject{
		StatusPurpose: PurposeRevocation,
		EncodedList:   encoded,
	}

	revoked, err := IsRevoked(42, subject)
	require.NoError(t, err)
	assert.True(t, revoked)

	notRevoked, err := IsRevoked(41, subject)
	require.NoError(t, err)
	assert.False(t, notRevoked)
}

func TestIsRevokedOutsideListLength(t *testing.T) {
	encoded, err := BuildList(make([]bool, 8))
	require.NoError(t, err)

	subject := ListCredentialSubject{
		StatusPurpose: PurposeRevocation,
		EncodedList:   encoded,
	}

	revoked, err := IsRevoked(1 << 20, subject)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestIsRevokedIgnoresOtherPurposes(t *testing.T) {
	bits := make([]bool, 8)
	bits[3] = true
	encoded, err := BuildList(bits)
	require.NoError(t, err)

	revoked, err := IsRevoked(3, ListCredentialSubject{
		StatusPurpose: PurposeSuspension,
		EncodedList:   encoded,
	})
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xff, 0x10, 0x42}
	encoded, err := CompressToBase64URL(data)
	require.NoError(t, err)
	decoded, err := DecompressFromBase64URL(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestTokenStatusListJWTRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	engine := jose.New()

	values := make([]Value, 16)
	values[5] = ValueInvalid
	values[9] = ValueSuspended
	list, err := NewTokenStatusList(values, 2)
	require.NoError(t, err)

	token, err := BuildJWT(engine, km, "https://issuer.example", "https://issuer.example/status/2", 1700000000, 300, list)
	require.NoError(t, err)

	parsed, err := VerifyJWT(engine, token, jose.StaticResolver{Key: km.PublicKey()},
		"https://issuer.example", "https://issuer.example/status/2", nil)
	require.NoError(t, err)
	assert.Equal(t, ValueInvalid, parsed.Get(5))
	assert.Equal(t, ValueSuspended, parsed.Get(9))
	assert.Equal(t, ValueValid, parsed.Get(0))
}

func TestTokenStatusListCOSERoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)

	values := make([]Value, 8)
	values[1] = ValueInvalid
	list, err := NewTokenStatusList(values, 1)
	require.NoError(t, err)

	data, err := BuildCOSE(km, "https://issuer.example/status/3", 1700000000, list)
	require.NoError(t, err)

	parsed, err := VerifyCOSE(data, km.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ValueInvalid, parsed.Get(1))
	assert.Equal(t, ValueValid, parsed.Get(0))
}
