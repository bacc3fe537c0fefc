package vckey

import (
	"crypto/elliptic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyES256RoundTrip(t *testing.T) {
	km, err := New(RoleIssuer, AlgES256)
	require.NoError(t, err)

	p := NewProvider()
	data := []byte("hello verifiable credential")

	sig, err := p.Sign(AlgES256, data, km.PrivateKey())
	require.NoError(t, err)
	assert.True(t, p.Verify(AlgES256, data, sig, km.PublicKey()))

	tampered := append([]byte{}, data...)
	tampered[0] ^= 0xFF
	assert.False(t, p.Verify(AlgES256, tampered, sig, km.PublicKey()))
}

func TestAEADGCMRoundTrip(t *testing.T) {
	p := NewProvider()
	key := make([]byte, 16)
	iv := make([]byte, 12)
	aad := []byte("aad")
	pt := []byte("plaintext content")

	ct, tag, err := p.AEADSeal(AEADA128GCM, key, iv, aad, pt)
	require.NoError(t, err)

	got, err := p.AEADOpen(AEADA128GCM, key, iv, aad, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, pt, got)

	_, err = p.AEADOpen(AEADA128GCM, key, iv, []byte("wrong aad"), ct, tag)
	assert.Error(t, err)
}

func TestAEADCBCHSRoundTrip(t *testing.T) {
	p := NewProvider()
	key := make([]byte, 32) // A128CBC-HS256 needs a 32-byte composite key
	iv := make([]byte, 16)
	aad := []byte("protected-header-b64")
	pt := []byte("short plaintext that needs padding")

	ct, tag, err := p.AEADSeal(AEADA128CBCHS, key, iv, aad, pt)
	require.NoError(t, err)

	got, err := p.AEADOpen(AEADA128CBCHS, key, iv, aad, ct, tag)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestECDHSharedSecretMatches(t *testing.T) {
	p := NewProvider()
	alice, err := p.GenerateEphemeral(elliptic.P256())
	require.NoError(t, err)
	bob, err := p.GenerateEphemeral(elliptic.P256())
	require.NoError(t, err)

	secretA, err := p.ECDH(alice, &bob.PublicKey)
	require.NoError(t, err)
	secretB, err := p.ECDH(bob, &alice.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, secretA, secretB)
}

func TestDIDKeyAndThumbprintAreStable(t *testing.T) {
	km, err := New(RoleHolder, AlgES256)
	require.NoError(t, err)

	did1, err := km.DIDKey()
	require.NoError(t, err)
	did2, err := km.DIDKey()
	require.NoError(t, err)
	assert.Equal(t, did1, did2)
	assert.Contains(t, did1, "did:key:z")

	tp1, err := km.Thumbprint()
	require.NoError(t, err)
	tp2, err := km.Thumbprint()
	require.NoError(t, err)
	assert.Equal(t, tp1, tp2)
}
