// Package mail holds the operator's notification inbox.
package mail

import (
	"sync"
	"time"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

// Entry is one notification in the inbox.
type Entry struct {
	workitem.Notification
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"received_at"`
}

// Inbox keeps notifications in arrival order. A notification id is accepted
// once; later injections of the same id are ignored. Safe for concurrent use
// so HTTP handlers can list it while the engine delivers into it.
type Inbox struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
	now     func() time.Time
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{byID: make(map[string]*Entry), now: time.Now}
}

// Enqueue adds n unless its id is already present. It reports whether n was
// added.
func (in *Inbox) Enqueue(n workitem.Notification) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, dup := in.byID[n.ID]; dup {
		return false
	}
	e := &Entry{Notification: n, ReceivedAt: in.now()}
	in.entries = append(in.entries, e)
	in.byID[n.ID] = e
	return true
}

// Read selects the notification with the given id and marks it read.
func (in *Inbox) Read(id string) (workitem.Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.byID[id]
	if !ok {
		return workitem.Notification{}, false
	}
	e.Read = true
	return e.Notification, true
}

// Next selects the oldest unread notification and marks it read.
func (in *Inbox) Next() (workitem.Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, e := range in.entries {
		if !e.Read {
			e.Read = true
			return e.Notification, true
		}
	}
	return workitem.Notification{}, false
}

// UnreadCount returns how many notifications have not been selected.
func (in *Inbox) UnreadCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	n := 0
	for _, e := range in.entries {
		if !e.Read {
			n++
		}
	}
	return n
}

// Len returns the number of notifications held.
func (in *Inbox) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.entries)
}

// List returns a copy of the inbox, newest first.
func (in *Inbox) List() []Entry {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]Entry, 0, len(in.entries))
	for i := len(in.entries) - 1; i >= 0; i-- {
		out = append(out, *in.entries[i])
	}
	return out
}
