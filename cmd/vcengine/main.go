// Command vcengine is the reference CLI over the engine: issue a
// credential in any of the three representations, build a presentation
// from it, and verify one. Keys live inside the bundle file the issue
// subcommand writes; nothing here is production key management.
package main

import (
	"errors"
	"os"

	"github.com/pilacorp/vc-engine/pkg/vcerr"
)

// Exit codes: 0 success, 2 validation failure, 3 I/O, 4 usage.
const (
	exitOK         = 0
	exitValidation = 2
	exitIO         = 3
	exitUsage      = 4
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var e *vcerr.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case vcerr.KindUsage:
			return exitUsage
		case vcerr.KindFetch, vcerr.KindCancellation:
			return exitIO
		default:
			return exitValidation
		}
	}
	var v *vcerr.ValidationError
	if errors.As(err, &v) {
		return exitValidation
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return exitIO
	}
	return exitUsage
}
