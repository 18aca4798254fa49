package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic inside it comes back as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for functions taking a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Run calls fn and reports a recovered panic through onPanic instead of
// crashing the process. Used for fire-and-forget goroutines.
func Run(fn func(), onPanic func(error)) {
	var catcher panics.Catcher
	catcher.Try(fn)
	if err := catcher.Recovered().AsError(); err != nil && onPanic != nil {
		onPanic(err)
	}
}
