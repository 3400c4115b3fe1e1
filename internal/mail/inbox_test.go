package mail

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

func note(id string) workitem.Notification {
	return workitem.Notification{ID: id, Sender: "qa@corp", Title: "re: " + id}
}

func TestEnqueueDeduplicatesByID(t *testing.T) {
	in := NewInbox()
	assert.True(t, in.Enqueue(note("E1")))
	assert.False(t, in.Enqueue(note("E1")))
	assert.True(t, in.Enqueue(note("E2")))
	assert.Equal(t, 2, in.Len())
	assert.Equal(t, 2, in.UnreadCount())
}

func TestReadMarksSelected(t *testing.T) {
	in := NewInbox()
	in.Enqueue(note("E1"))
	in.Enqueue(note("E2"))

	n, ok := in.Read("E2")
	require.True(t, ok)
	assert.Equal(t, "E2", n.ID)
	assert.Equal(t, 1, in.UnreadCount())

	_, ok = in.Read("missing")
	assert.False(t, ok)
}

func TestNextReturnsOldestUnread(t *testing.T) {
	in := NewInbox()
	in.Enqueue(note("E1"))
	in.Enqueue(note("E2"))
	in.Read("E1")

	n, ok := in.Next()
	require.True(t, ok)
	assert.Equal(t, "E2", n.ID)

	_, ok = in.Next()
	assert.False(t, ok)
	assert.Zero(t, in.UnreadCount())
}

func TestReadingDoesNotReopenDedupe(t *testing.T) {
	in := NewInbox()
	in.Enqueue(note("E1"))
	in.Next()
	assert.False(t, in.Enqueue(note("E1")), "a read notification must not be delivered twice")
}

func TestListNewestFirst(t *testing.T) {
	in := NewInbox()
	in.Enqueue(note("E1"))
	in.Enqueue(note("E2"))
	in.Read("E1")

	list := in.List()
	require.Len(t, list, 2)
	assert.Equal(t, "E2", list[0].ID)
	assert.False(t, list[0].Read)
	assert.True(t, list[1].Read)
}

func TestConcurrentEnqueue(t *testing.T) {
	in := NewInbox()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Enqueue(note("SAME"))
			_ = in.List()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, in.Len())
}
