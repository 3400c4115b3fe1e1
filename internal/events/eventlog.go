// Package events provides the append-only journal of everything that happens
// during a shift. Presentation, the status cache and the persistent journal
// all read from here; the engine only ever appends.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a shift event.
type EventType string

const (
	EventTypeDayStarted            EventType = "DAY_STARTED"
	EventTypeTimeTick              EventType = "TIME_TICK"
	EventTypeMidnightPassed        EventType = "MIDNIGHT_PASSED"
	EventTypeItemDispatched        EventType = "ITEM_DISPATCHED"
	EventTypeJudgement             EventType = "JUDGEMENT"
	EventTypeQueueExhausted        EventType = "QUEUE_EXHAUSTED"
	EventTypeShiftEnded            EventType = "SHIFT_ENDED"
	EventTypeDaySettled            EventType = "DAY_SETTLED"
	EventTypeReportArmed           EventType = "REPORT_ARMED"
	EventTypeNotificationDelivered EventType = "NOTIFICATION_DELIVERED"
	EventTypeConfigurationMissing  EventType = "CONFIGURATION_MISSING"
)

// ActorSystem marks events emitted by the simulation itself.
const ActorSystem = "SYSTEM"

// ActorOperator marks events caused by the operator's input.
const ActorOperator = "OPERATOR"

// GameEvent represents an immutable record of something in the shift.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`
	TargetID  string      `json:"target_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	GameDay   int         `json:"game_day"`
	SimMinute int         `json:"sim_minute"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// Sink accepts events. The engine depends on this rather than on EventLog.
type Sink interface {
	Append(event GameEvent)
}

// ErrJournalBacklog is reported to the OnPersisted hook for an event that
// was not persisted because the write queue was full.
var ErrJournalBacklog = errors.New("journal write queue full")

const persistQueueSize = 4096

// EventLog is the in-memory append-only log of shift events.
type EventLog struct {
	mu          sync.RWMutex
	events      []GameEvent
	persister   EventPersister
	onPersisted func(latency time.Duration, err error)
	queue       chan GameEvent
	writerDone  chan struct{}
	closed      bool
	closeOnce   sync.Once

	subMu       sync.RWMutex
	subscribers map[int]func(GameEvent)
	nextSub     int
}

// NewEventLog creates a new event log with an optional persister. Events
// are written to the persister by one goroutine, in append order; call Close
// to drain it.
func NewEventLog(persister EventPersister) *EventLog {
	el := &EventLog{
		events:      make([]GameEvent, 0),
		persister:   persister,
		subscribers: make(map[int]func(GameEvent)),
	}
	if persister != nil {
		el.queue = make(chan GameEvent, persistQueueSize)
		el.writerDone = make(chan struct{})
		go el.writeLoop()
	}
	return el
}

func (el *EventLog) writeLoop() {
	defer close(el.writerDone)
	for e := range el.queue {
		start := time.Now()
		err := el.persister.Append(e)
		el.reportWrite(time.Since(start), err)
	}
}

func (el *EventLog) reportWrite(latency time.Duration, err error) {
	el.mu.RLock()
	hook := el.onPersisted
	el.mu.RUnlock()
	if hook != nil {
		hook(latency, err)
	}
}

// Close stops accepting persister writes and waits for queued ones. The
// in-memory log and subscribers keep working.
func (el *EventLog) Close() {
	if el.queue == nil {
		return
	}
	el.closeOnce.Do(func() {
		el.mu.Lock()
		el.closed = true
		close(el.queue)
		el.mu.Unlock()
		<-el.writerDone
	})
}

// OnPersisted registers a hook called after every persister write.
func (el *EventLog) OnPersisted(fn func(latency time.Duration, err error)) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onPersisted = fn
}

// Subscribe registers fn to receive every appended event synchronously, in
// append order, on the appending goroutine. The returned func unsubscribes;
// it is safe to call more than once.
func (el *EventLog) Subscribe(fn func(GameEvent)) (unsubscribe func()) {
	el.subMu.Lock()
	id := el.nextSub
	el.nextSub++
	el.subscribers[id] = fn
	el.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			el.subMu.Lock()
			delete(el.subscribers, id)
			el.subMu.Unlock()
		})
	}
}

// Append adds a new event to the log. Missing IDs and timestamps are filled
// in. Events are immutable once appended.
func (el *EventLog) Append(event GameEvent) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	dropped := false
	el.mu.Lock()
	el.events = append(el.events, event)
	if el.queue != nil && !el.closed {
		select {
		case el.queue <- event:
		default:
			dropped = true
		}
	}
	el.mu.Unlock()

	if dropped {
		el.reportWrite(0, ErrJournalBacklog)
	}

	el.subMu.RLock()
	subs := make([]func(GameEvent), 0, len(el.subscribers))
	for i := 0; i < el.nextSub; i++ {
		if fn, ok := el.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	el.subMu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}
}

// Len returns the number of events recorded so far.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns a copy of the events appended after the first n.
func (el *EventLog) Since(n int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(el.events) {
		return nil
	}
	out := make([]GameEvent, len(el.events)-n)
	copy(out, el.events[n:])
	return out
}

// GetByType returns all events of a given type.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// GetByDay returns all events that occurred on a specific simulated day.
func (el *EventLog) GetByDay(day int) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.GameDay == day {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []GameEvent {
	return el.Since(0)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
