package vcjwt

import (
	"testing"

	"github.com/piprate/json-gold/ld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/vc-engine/pkg/codec"
)

// stubLoader serves one fixed context document for every URL, keeping
// expansion tests off the network.
type stubLoader struct {
	document map[string]interface{}
}

func (s stubLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return &ld.RemoteDocument{DocumentURL: u, Document: s.document}, nil
}

func TestExpandContextsResolvesTerms(t *testing.T) {
	SetDocumentLoader(stubLoader{document: map[string]interface{}{
		"@context": map[string]interface{}{
			"given-name": "https://vocab.example/given-name",
		},
	}})

	expanded, err := ExpandContexts(codec.ClaimSet{
		"@context":   "https://ctx.example/credentials/v1",
		"given-name": "Erika",
	})
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	node, ok := expanded[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, node, "https://vocab.example/given-name")
}

func TestExpandContextsRejectsContextFreeClaims(t *testing.T) {
	// Without an @context no term maps, so the credential expands to
	// nothing.
	_, err := ExpandContexts(codec.ClaimSet{"given-name": "Erika"})
	assert.Error(t, err)
}
