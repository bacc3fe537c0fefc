package nonce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAndRemoveIsSingleUse(t *testing.T) {
	s := New()
	n := s.Generate()
	require.NotEmpty(t, n)

	assert.True(t, s.VerifyAndRemove(n))
	assert.False(t, s.VerifyAndRemove(n))
	assert.False(t, s.VerifyAndRemove("never-issued"))
}

func TestConcurrentVerifyAndRemoveAdmitsExactlyOne(t *testing.T) {
	s := New()
	n := s.Generate()

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.VerifyAndRemove(n)
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}
