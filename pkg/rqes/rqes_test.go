package rqes

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
	"github.com/pilacorp/vc-engine/pkg/vckey"
)

func TestNewSignatureRequestDigestsDocuments(t *testing.T) {
	contract := []byte("the quick brown contract")
	params, err := NewSignatureRequest(vckey.DigestSHA256, QualifierEUEidasQES, map[string][]byte{
		"contract.pdf": contract,
	})
	require.NoError(t, err)
	require.NoError(t, params.Validate())

	require.Len(t, params.DocumentDigests, 1)
	want := sha256.Sum256(contract)
	assert.Equal(t, codec.B64URL(want[:]), params.DocumentDigests[0].Hash)
	assert.Equal(t, "2.16.840.1.101.3.4.2.1", params.HashAlgorithmOID)
}

func TestValidateRejectsBadShapes(t *testing.T) {
	empty := &SignatureRequestParameters{HashAlgorithmOID: "2.16.840.1.101.3.4.2.1"}
	assert.Error(t, empty.Validate())

	mismatched := &SignatureRequestParameters{
		HashAlgorithmOID: "2.16.840.1.101.3.4.2.1",
		DocumentDigests:  []DocumentDigest{{Hash: "AAAA", Label: "a"}},
		DocumentLocations: []DocumentLocation{
			{URI: "https://docs.example/a"},
			{URI: "https://docs.example/b"},
		},
	}
	assert.Error(t, mismatched.Validate())

	badHash := &SignatureRequestParameters{
		HashAlgorithmOID: "2.16.840.1.101.3.4.2.1",
		DocumentDigests:  []DocumentDigest{{Hash: "not base64url!", Label: "a"}},
	}
	assert.Error(t, badHash.Validate())
}
