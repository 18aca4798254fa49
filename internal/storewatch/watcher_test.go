package storewatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_NotifiesOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	var calls atomic.Int32
	w := New(dir, func() { calls.Add(1) }, "active.json")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte("x"), 0o644))
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(`[{"id":"t1"}]`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Same bytes again: the hash is unchanged so nothing fires.
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"t1"}]`), 0o644))
	time.Sleep(3 * DebounceInterval)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_NoCallbackAfterRunReturns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	var calls atomic.Int32
	w := New(dir, func() { calls.Add(1) }, "active.json")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"t1"}]`), 0o644))
	time.Sleep(DebounceInterval / 4)
	cancel()
	require.NoError(t, <-done)

	atReturn := calls.Load()
	time.Sleep(3 * DebounceInterval)
	assert.Equal(t, atReturn, calls.Load())
}
