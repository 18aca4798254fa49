package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(4)
	defer bus.Unsubscribe(id)

	bus.PublishNew(SyncSucceeded, "task-1", "create", map[string]string{"attempt": "1"})

	ev := <-ch
	require.NotNil(t, ev)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, SyncSucceeded, ev.Type)
	assert.Equal(t, "task-1", ev.ResourceID)
	assert.Equal(t, "1", ev.Metadata["attempt"])
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestBus_DropsWhenBufferFull(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	bus.PublishNew(SyncRetrying, "a", "", nil)
	bus.PublishNew(SyncFailed, "b", "", nil)

	ev := <-ch
	assert.Equal(t, "a", ev.ResourceID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %v", extra)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	bus.Unsubscribe(id)
	bus.PublishNew(CacheInvalidated, "", "", nil)
}
