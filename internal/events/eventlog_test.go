package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []GameEvent
	err    error
}

func (p *recordingPersister) Append(e GameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeDayStarted, GameDay: 1})

	all := el.Replay()
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())
}

func TestSubscribersSeeEventsInOrderUntilUnsubscribed(t *testing.T) {
	el := NewEventLog(nil)
	var seen []EventType
	unsubscribe := el.Subscribe(func(e GameEvent) { seen = append(seen, e.Type) })

	el.Append(GameEvent{Type: EventTypeDayStarted})
	el.Append(GameEvent{Type: EventTypeTimeTick})
	unsubscribe()
	unsubscribe()
	el.Append(GameEvent{Type: EventTypeDaySettled})

	assert.Equal(t, []EventType{EventTypeDayStarted, EventTypeTimeTick}, seen)
}

func TestSinceAndFilters(t *testing.T) {
	el := NewEventLog(nil)
	el.Append(GameEvent{Type: EventTypeDayStarted, GameDay: 1})
	el.Append(GameEvent{Type: EventTypeJudgement, GameDay: 1})
	el.Append(GameEvent{Type: EventTypeDayStarted, GameDay: 2})

	assert.Len(t, el.Since(1), 2)
	assert.Nil(t, el.Since(3))
	assert.Len(t, el.GetByDay(1), 2)
	assert.Len(t, el.GetByType(EventTypeDayStarted), 2)
	assert.Equal(t, 3, el.Len())
}

func TestPersisterWriteThroughReportsErrors(t *testing.T) {
	p := &recordingPersister{err: errors.New("disk full")}
	el := NewEventLog(p)

	var mu sync.Mutex
	var failures int
	el.OnPersisted(func(_ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
		}
	})

	el.Append(GameEvent{Type: EventTypeJudgement})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return p.count() == 1 && failures == 1
	}, time.Second, 5*time.Millisecond)
}

type slowPersister struct {
	recordingPersister
	delay time.Duration
}

func (p *slowPersister) Append(e GameEvent) error {
	time.Sleep(p.delay)
	return p.recordingPersister.Append(e)
}

func TestPersisterKeepsAppendOrderAndCloseDrains(t *testing.T) {
	p := &slowPersister{delay: time.Millisecond}
	el := NewEventLog(p)
	for i := 0; i < 20; i++ {
		el.Append(GameEvent{Type: EventTypeTimeTick, SimMinute: 600 + i})
	}
	el.Close()
	el.Close()

	require.Equal(t, 20, p.count())
	for i, e := range p.events {
		assert.Equal(t, 600+i, e.SimMinute)
	}

	el.Append(GameEvent{Type: EventTypeTimeTick})
	assert.Equal(t, 21, el.Len(), "the in-memory log outlives the writer")
	assert.Equal(t, 20, p.count())
}
