// Package timeutil implements NumericDate and TimeProvider:
// seconds-resolution JWT/CWT timestamps with leeway-aware comparisons,
// shared by the credential engines and the OpenID4VP response
// validator.
package timeutil

import "time"

// NumericDate is a JSON Numeric Date (RFC 7519 section 2): seconds since
// the Unix epoch, truncated — never rounded — to whole seconds.
type NumericDate int64

// FromTime truncates t to seconds-resolution NumericDate.
func FromTime(t time.Time) NumericDate {
	return NumericDate(t.Unix())
}

// Time expands back to a time.Time in UTC.
func (n NumericDate) Time() time.Time {
	return time.Unix(int64(n), 0).UTC()
}

// TimeProvider abstracts "now" so tests can pin it; the zero value uses
// the wall clock.
type TimeProvider interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// WallClock is the default TimeProvider.
var WallClock TimeProvider = wallClock{}

// Fixed returns a TimeProvider pinned at t, used by tests exercising
// exp/leeway boundary behavior.
func Fixed(t time.Time) TimeProvider {
	return fixedClock{t}
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// WithinLeeway reports whether now falls in [notBefore-leeway, notAfter+leeway].
// A zero notBefore or notAfter is treated as unbounded on that side.
func WithinLeeway(now time.Time, notBefore, notAfter NumericDate, leeway time.Duration) bool {
	if notBefore != 0 && now.Before(notBefore.Time().Add(-leeway)) {
		return false
	}
	if notAfter != 0 && now.After(notAfter.Time().Add(leeway)) {
		return false
	}
	return true
}
