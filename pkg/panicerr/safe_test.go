package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	errBoom := errors.New("boom")

	assert.NoError(t, Safe(func() error { return nil })())
	assert.ErrorIs(t, Safe(func() error { return errBoom })(), errBoom)

	err := Safe(func() error { panic("kaboom") })()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestSafeContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	err := SafeContext(func(ctx context.Context) error {
		if ctx.Value(key{}) != "v" {
			return errors.New("context not passed")
		}
		return nil
	})(ctx)
	assert.NoError(t, err)
}

func TestRun(t *testing.T) {
	var got error
	Run(func() { panic("worker") }, func(err error) { got = err })
	require.Error(t, got)
	assert.Contains(t, got.Error(), "worker")

	called := false
	Run(func() {}, func(error) { called = true })
	assert.False(t, called)
}
