package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithinLeewayBoundaries(t *testing.T) {
	exp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	nbf := exp.Add(-time.Hour)
	leeway := time.Minute

	notBefore, notAfter := FromTime(nbf), FromTime(exp)

	// exp exactly now-leeway is still accepted; one more second is not.
	assert.True(t, WithinLeeway(exp.Add(leeway), notBefore, notAfter, leeway))
	assert.False(t, WithinLeeway(exp.Add(leeway+time.Second), notBefore, notAfter, leeway))

	assert.True(t, WithinLeeway(nbf.Add(-leeway), notBefore, notAfter, leeway))
	assert.False(t, WithinLeeway(nbf.Add(-leeway-time.Second), notBefore, notAfter, leeway))
}

func TestWithinLeewayZeroBoundsAreOpen(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, WithinLeeway(now, 0, 0, 0))
	assert.True(t, WithinLeeway(now, FromTime(now.Add(-time.Hour)), 0, 0))
}

func TestNumericDateRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, FromTime(at).Time().Equal(at))
}
