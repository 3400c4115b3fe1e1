package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bugshift/internal/events"
)

type settledPayload struct {
	Day        int   `json:"day"`
	Judgements int   `json:"judgements"`
	Wrong      int   `json:"wrong"`
	Balance    int64 `json:"balance"`
	Completed  bool  `json:"completed"`
}

func TestJournalPersisterWritesEventsAndSummaries(t *testing.T) {
	eventsRepo, summaries := newMemoryDB(t)
	p := NewJournalPersister(eventsRepo, summaries, "s1")
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Append(events.GameEvent{
		ID: "e1", Timestamp: ts, Type: events.EventTypeQueueExhausted, ActorID: events.ActorSystem, GameDay: 1, SimMinute: 700,
	}))
	require.NoError(t, p.Append(events.GameEvent{
		ID: "e2", Timestamp: ts, Type: events.EventTypeDaySettled, ActorID: events.ActorSystem, GameDay: 1, SimMinute: 700,
		Payload: settledPayload{Day: 1, Judgements: 3, Wrong: 1, Balance: 85, Completed: true},
	}))
	require.NoError(t, p.Append(events.GameEvent{
		ID: "e3", Timestamp: ts, Type: events.EventTypeTimeTick, ActorID: events.ActorSystem, GameDay: 2, Payload: 42,
	}))

	ctx := context.Background()
	all, err := eventsRepo.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Empty(t, all[0].Payload)
	assert.EqualValues(t, 85, all[1].Payload["balance"])
	assert.EqualValues(t, 42, all[2].Payload["value"])

	days, err := summaries.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.EqualValues(t, 85, days[0].Balance)
	assert.True(t, days[0].Completed)
	assert.True(t, days[0].SettledAt.Equal(ts))
}

func TestJournalPersisterWithEventLog(t *testing.T) {
	eventsRepo, _ := newMemoryDB(t)
	p := NewJournalPersister(eventsRepo, nil, "s1")
	log := events.NewEventLog(p)

	done := make(chan error, 1)
	log.OnPersisted(func(_ time.Duration, err error) { done <- err })
	log.Append(events.GameEvent{Type: events.EventTypeDayStarted, ActorID: events.ActorSystem, GameDay: 1})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("persister never ran")
	}
	got, err := eventsRepo.GetByEventType(context.Background(), "s1", string(events.EventTypeDayStarted))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
