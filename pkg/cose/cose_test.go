package cose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func TestSign1VerifyRoundTrip(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)

	payload := []byte("mobile security object bytes")
	msg, err := Sign1(km, payload, nil, nil)
	require.NoError(t, err)

	err = Verify1(msg, km.PublicKey())
	assert.NoError(t, err)
}

func TestSign1VerifyRejectsWrongKey(t *testing.T) {
	km, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)
	other, err := vckey.New(vckey.RoleIssuer, vckey.AlgES256)
	require.NoError(t, err)

	msg, err := Sign1(km, []byte("payload"), nil, nil)
	require.NoError(t, err)

	err = Verify1(msg, other.PublicKey())
	assert.Error(t, err)
}
