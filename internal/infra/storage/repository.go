// Package storage provides the persistence layer for the shift journal.
// This package implements the repository pattern to keep the domain pure.
// The journal is an audit trail: the engine writes to it and never restores
// state from it.
package storage

import (
	"context"
	"time"
)

// JournalEvent mirrors the domain event structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type JournalEvent struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	GameDay   int                    `json:"game_day" db:"game_day"`
	SimMinute int                    `json:"sim_minute" db:"sim_minute"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable journal.
	Append(ctx context.Context, event JournalEvent) error

	// GetBySession retrieves all events of a session in write order.
	GetBySession(ctx context.Context, sessionID string) ([]JournalEvent, error)

	// GetByGameDay retrieves all events from a specific simulated day.
	GetByGameDay(ctx context.Context, sessionID string, day int) ([]JournalEvent, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, sessionID string, eventType string) ([]JournalEvent, error)

	// GetRecent retrieves the newest events, newest first.
	GetRecent(ctx context.Context, sessionID string, limit int) ([]JournalEvent, error)
}

// DaySummaryRecord is one settled day.
type DaySummaryRecord struct {
	SessionID       string    `json:"session_id" db:"session_id"`
	Day             int       `json:"day" db:"day"`
	Reason          string    `json:"reason" db:"reason"`
	Judgements      int       `json:"judgements" db:"judgements"`
	Wrong           int       `json:"wrong" db:"wrong"`
	Income          int64     `json:"income" db:"income"`
	PerfectBonus    int64     `json:"perfect_bonus" db:"perfect_bonus"`
	Penalty         int64     `json:"penalty" db:"penalty"`
	Bribe           int64     `json:"bribe" db:"bribe"`
	Expense         int64     `json:"expense" db:"expense"`
	Balance         int64     `json:"balance" db:"balance"`
	FiredEnding     bool      `json:"fired_ending" db:"fired_ending"`
	BankruptEnding  bool      `json:"bankrupt_ending" db:"bankrupt_ending"`
	Completed       bool      `json:"completed" db:"completed"`
	NextDayPunished bool      `json:"next_day_punished" db:"next_day_punished"`
	SettledAt       time.Time `json:"settled_at" db:"settled_at"`
}

// SummaryRepository stores day-end summaries.
type SummaryRepository interface {
	// Record inserts or replaces the summary for (session, day).
	Record(ctx context.Context, summary DaySummaryRecord) error

	// GetBySession retrieves every recorded day of a session, oldest first.
	GetBySession(ctx context.Context, sessionID string) ([]DaySummaryRecord, error)
}
