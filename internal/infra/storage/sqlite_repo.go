package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const sqliteEventColumns = `id, session_id, timestamp, event_type, actor_id, target_id, payload, game_day, sim_minute`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event JournalEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, session_id, timestamp, event_type, actor_id, target_id, payload, game_day, sim_minute)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp.UTC().Format(time.RFC3339Nano), event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.GameDay, event.SimMinute,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]JournalEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []JournalEvent
	for rows.Next() {
		var e JournalEvent
		var ts, payloadStr string
		err := rows.Scan(
			&e.ID, &e.SessionID, &ts, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.GameDay, &e.SimMinute,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("event %s timestamp: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]JournalEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE session_id = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, sessionID)
}

func (r *SQLiteEventRepository) GetByGameDay(ctx context.Context, sessionID string, day int) ([]JournalEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE session_id = ? AND game_day = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, sessionID, day)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, sessionID string, eventType string) ([]JournalEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE session_id = ? AND event_type = ? ORDER BY seq ASC`
	return r.getMany(ctx, query, sessionID, eventType)
}

func (r *SQLiteEventRepository) GetRecent(ctx context.Context, sessionID string, limit int) ([]JournalEvent, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE session_id = ? ORDER BY seq DESC LIMIT ?`
	return r.getMany(ctx, query, sessionID, limit)
}

// ---------------------------------------------------------
// SQLiteSummaryRepository
// ---------------------------------------------------------

type SQLiteSummaryRepository struct {
	db *sql.DB
}

func NewSQLiteSummaryRepository(db *sql.DB) *SQLiteSummaryRepository {
	return &SQLiteSummaryRepository{db: db}
}

func (r *SQLiteSummaryRepository) Record(ctx context.Context, s DaySummaryRecord) error {
	query := `
		INSERT INTO day_summaries (session_id, day, reason, judgements, wrong, income, perfect_bonus, penalty, bribe, expense, balance, fired_ending, bankrupt_ending, completed, next_day_punished, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, day) DO UPDATE SET
			reason=excluded.reason,
			judgements=excluded.judgements,
			wrong=excluded.wrong,
			income=excluded.income,
			perfect_bonus=excluded.perfect_bonus,
			penalty=excluded.penalty,
			bribe=excluded.bribe,
			expense=excluded.expense,
			balance=excluded.balance,
			fired_ending=excluded.fired_ending,
			bankrupt_ending=excluded.bankrupt_ending,
			completed=excluded.completed,
			next_day_punished=excluded.next_day_punished,
			settled_at=excluded.settled_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Day, s.Reason, s.Judgements, s.Wrong, s.Income, s.PerfectBonus, s.Penalty, s.Bribe,
		s.Expense, s.Balance, s.FiredEnding, s.BankruptEnding, s.Completed, s.NextDayPunished,
		s.SettledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record day summary: %w", err)
	}
	return nil
}

func (r *SQLiteSummaryRepository) GetBySession(ctx context.Context, sessionID string) ([]DaySummaryRecord, error) {
	query := `SELECT session_id, day, reason, judgements, wrong, income, perfect_bonus, penalty, bribe, expense, balance, fired_ending, bankrupt_ending, completed, next_day_punished, settled_at FROM day_summaries WHERE session_id = ? ORDER BY day ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query day summaries: %w", err)
	}
	defer rows.Close()

	var out []DaySummaryRecord
	for rows.Next() {
		var s DaySummaryRecord
		var settled string
		if err := rows.Scan(&s.SessionID, &s.Day, &s.Reason, &s.Judgements, &s.Wrong, &s.Income, &s.PerfectBonus,
			&s.Penalty, &s.Bribe, &s.Expense, &s.Balance, &s.FiredEnding, &s.BankruptEnding, &s.Completed,
			&s.NextDayPunished, &settled); err != nil {
			return nil, fmt.Errorf("failed to scan day summary: %w", err)
		}
		if s.SettledAt, err = time.Parse(time.RFC3339Nano, settled); err != nil {
			return nil, fmt.Errorf("day %d settled_at: %w", s.Day, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ EventRepository   = (*SQLiteEventRepository)(nil)
	_ SummaryRepository = (*SQLiteSummaryRepository)(nil)
)
