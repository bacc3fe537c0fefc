// Package logging carries the engine's ambient structured-logging
// stack: a thin facade over logrus so library code that signs and
// verifies untrusted wire material keeps a consistent log shape.
// Log output is never part of any API contract.
package logging

import "github.com/sirupsen/logrus"

// Logger is the interface engine components log through. It is satisfied
// by *logrus.Logger, *logrus.Entry, and the Nop logger below.
type Logger = logrus.FieldLogger

var std = logrus.StandardLogger()

// Default returns the process-wide logrus logger that Component scopes.
func Default() Logger { return std }

// Component returns a Logger scoped to one named component, e.g.
// "openid4vp", "sdjwt", "mdoc".
func Component(name string) Logger {
	return std.WithField("component", name)
}

// Nop returns a Logger that discards everything, for tests that want
// silence.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(discard{})
	return l
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
