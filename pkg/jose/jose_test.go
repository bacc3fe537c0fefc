package jose

import (
	"crypto/ecdsa"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func TestJWSSignVerifyRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)

	e := New()
	payload := []byte(`{"sub":"holder-1","claim":"value"}`)

	token, err := e.Sign(km, payload, nil)
	require.NoError(t, err)

	jws, err := e.Verify(token, StaticResolver{Key: km.PublicKey()})
	require.NoError(t, err)
	assert.Equal(t, payload, jws.Payload)
	assert.Equal(t, "ES256", jws.Protected["alg"])
}

func TestJWSSignVerifyES256KRoundTrip(t *testing.T) {
	km, err := vckey.NewLegacyES256K(vckey.RoleVerifier)
	require.NoError(t, err)

	e := New()
	token, err := e.Sign(km, []byte(`{"sub":"https://verifier.example/rp1"}`), nil)
	require.NoError(t, err)

	jws, err := e.Verify(token, StaticResolver{Key: km.PublicKey()})
	require.NoError(t, err)
	assert.Equal(t, "ES256K", jws.Protected["alg"])

	// Legacy issuers publish the compressed key encoding; the signing
	// method parses it on the fly.
	compressed := ethcrypto.CompressPubkey(km.PublicKey().(*ecdsa.PublicKey))
	_, err = e.Verify(token, StaticResolver{Key: compressed})
	require.NoError(t, err)
}

func TestJWSVerifyRejectsTamperedSignature(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)

	e := New()
	token, err := e.Sign(km, []byte(`{"a":1}`), nil)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = e.Verify(tampered, StaticResolver{Key: km.PublicKey()})
	assert.Error(t, err)
}

func TestJWEECDHESRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleHolder, vckey.AlgES256)
	require.NoError(t, err)
	recipientPub, ok := km.PublicKey().(*ecdsa.PublicKey)
	require.True(t, ok)

	e := New()
	plaintext := []byte("selective disclosure key-binding payload")

	token, err := e.EncryptECDHES(recipientPub, vckey.AEADA128GCM, nil, nil, plaintext, nil)
	require.NoError(t, err)

	got, header, err := e.DecryptECDHES(km, token)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.Equal(t, "ECDH-ES", header["alg"])
}
