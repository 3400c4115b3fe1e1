package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/bugshift/internal/events"
)

// JournalPersister writes domain events to the journal and records each
// DAY_SETTLED payload as a day summary. It implements events.EventPersister.
type JournalPersister struct {
	events    EventRepository
	summaries SummaryRepository
	sessionID string
	timeout   time.Duration
}

// NewJournalPersister creates a persister for one session. summaries may be
// nil.
func NewJournalPersister(eventsRepo EventRepository, summaries SummaryRepository, sessionID string) *JournalPersister {
	return &JournalPersister{events: eventsRepo, summaries: summaries, sessionID: sessionID, timeout: 5 * time.Second}
}

// Append translates and stores one event.
func (p *JournalPersister) Append(event events.GameEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	raw, payload, err := payloadMap(event.Payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", event.ID, err)
	}

	je := JournalEvent{
		ID:        event.ID,
		SessionID: p.sessionID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payload,
		GameDay:   event.GameDay,
		SimMinute: event.SimMinute,
	}
	if err := p.events.Append(ctx, je); err != nil {
		return err
	}

	if event.Type != events.EventTypeDaySettled || p.summaries == nil {
		return nil
	}
	var rec DaySummaryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode day summary: %w", err)
	}
	rec.SessionID = p.sessionID
	rec.SettledAt = event.Timestamp
	return p.summaries.Record(ctx, rec)
}

// payloadMap flattens any payload into a JSON object. Non-object payloads
// are stored under "value".
func payloadMap(payload interface{}) ([]byte, map[string]interface{}, error) {
	if payload == nil {
		return nil, map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		m = map[string]interface{}{"value": v}
	}
	return raw, m, nil
}

var _ events.EventPersister = (*JournalPersister)(nil)
