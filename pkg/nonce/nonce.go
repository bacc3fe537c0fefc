// Package nonce implements the single-use nonce service: UUIDv4 values
// recorded at generation and consumed exactly once at verification,
// backed by store.MapStore.
package nonce

import (
	"github.com/google/uuid"

	"github.com/pilacorp/vc-engine/pkg/store"
)

// Service issues and consumes single-use nonces.
type Service struct {
	seen *store.MapStore[string, struct{}]
}

// New creates an empty nonce Service.
func New() *Service {
	return &Service{seen: store.New[string, struct{}]()}
}

// Generate mints a fresh UUIDv4 nonce and records it as outstanding.
func (s *Service) Generate() string {
	n := uuid.NewString()
	s.seen.Put(n, struct{}{})
	return n
}

// VerifyAndRemove reports whether n was outstanding, removing it in the
// same atomic step so a replayed nonce is rejected on its second use.
func (s *Service) VerifyAndRemove(n string) bool {
	_, ok := s.seen.Take(n)
	return ok
}

// Outstanding reports how many nonces are currently unconsumed. Exposed
// for caller-implemented TTL eviction on cancelled protocol runs.
func (s *Service) Outstanding() int {
	return s.seen.Len()
}

// Evict removes a nonce without checking it in, used by caller-driven TTL
// sweeps or cancellation.
func (s *Service) Evict(n string) {
	s.seen.Remove(n)
}
