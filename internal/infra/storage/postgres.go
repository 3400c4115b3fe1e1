package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// OpenPostgres connects to PostgreSQL, sizes the pool and creates the
// journal schema.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	if err := CreatePostgresSchemas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return db, nil
}

// CreatePostgresSchemas creates the event_log and day_summaries tables.
func CreatePostgresSchemas(ctx context.Context, db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS event_log (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			target_id TEXT,
			payload JSONB NOT NULL,
			game_day INTEGER NOT NULL,
			sim_minute INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_day ON event_log(session_id, game_day)`,
		`CREATE TABLE IF NOT EXISTS day_summaries (
			session_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			reason TEXT NOT NULL,
			judgements INTEGER NOT NULL,
			wrong INTEGER NOT NULL,
			income BIGINT NOT NULL,
			perfect_bonus BIGINT NOT NULL,
			penalty BIGINT NOT NULL,
			bribe BIGINT NOT NULL,
			expense BIGINT NOT NULL,
			balance BIGINT NOT NULL,
			fired_ending BOOLEAN NOT NULL,
			bankrupt_ending BOOLEAN NOT NULL,
			completed BOOLEAN NOT NULL,
			next_day_punished BOOLEAN NOT NULL,
			settled_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, day)
		)`,
	}
	for _, q := range schemas {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

const postgresEventColumns = `id, session_id, timestamp, event_type, actor_id, target_id, payload, game_day, sim_minute`

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL event repository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// Append inserts a new event into the immutable journal.
func (r *PostgresEventRepository) Append(ctx context.Context, event JournalEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO event_log (id, session_id, timestamp, event_type, actor_id, target_id, payload, game_day, sim_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.Timestamp,
		event.EventType,
		event.ActorID,
		event.TargetID,
		payloadJSON,
		event.GameDay,
		event.SimMinute,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// GetBySession retrieves all events of a session.
func (r *PostgresEventRepository) GetBySession(ctx context.Context, sessionID string) ([]JournalEvent, error) {
	query := `SELECT ` + postgresEventColumns + ` FROM event_log WHERE session_id = $1 ORDER BY seq ASC`
	return r.queryEvents(ctx, query, sessionID)
}

// GetByGameDay retrieves all events from a specific simulated day.
func (r *PostgresEventRepository) GetByGameDay(ctx context.Context, sessionID string, day int) ([]JournalEvent, error) {
	query := `SELECT ` + postgresEventColumns + ` FROM event_log WHERE session_id = $1 AND game_day = $2 ORDER BY seq ASC`
	return r.queryEvents(ctx, query, sessionID, day)
}

// GetByEventType retrieves all events of a specific type.
func (r *PostgresEventRepository) GetByEventType(ctx context.Context, sessionID string, eventType string) ([]JournalEvent, error) {
	query := `SELECT ` + postgresEventColumns + ` FROM event_log WHERE session_id = $1 AND event_type = $2 ORDER BY seq ASC`
	return r.queryEvents(ctx, query, sessionID, eventType)
}

// GetRecent retrieves the newest events first.
func (r *PostgresEventRepository) GetRecent(ctx context.Context, sessionID string, limit int) ([]JournalEvent, error) {
	query := `SELECT ` + postgresEventColumns + ` FROM event_log WHERE session_id = $1 ORDER BY seq DESC LIMIT $2`
	return r.queryEvents(ctx, query, sessionID, limit)
}

// queryEvents is a helper to execute queries and scan results.
func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]JournalEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []JournalEvent
	for rows.Next() {
		var e JournalEvent
		var payloadJSON []byte
		var targetID sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.Timestamp,
			&e.EventType,
			&e.ActorID,
			&targetID,
			&payloadJSON,
			&e.GameDay,
			&e.SimMinute,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if targetID.Valid {
			e.TargetID = targetID.String
		}

		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// PostgresSummaryRepository implements SummaryRepository using PostgreSQL.
type PostgresSummaryRepository struct {
	db *sql.DB
}

// NewPostgresSummaryRepository creates a new PostgreSQL summary repository.
func NewPostgresSummaryRepository(db *sql.DB) *PostgresSummaryRepository {
	return &PostgresSummaryRepository{db: db}
}

// Record upserts one settled day.
func (r *PostgresSummaryRepository) Record(ctx context.Context, s DaySummaryRecord) error {
	query := `
		INSERT INTO day_summaries (session_id, day, reason, judgements, wrong, income, perfect_bonus, penalty, bribe, expense, balance, fired_ending, bankrupt_ending, completed, next_day_punished, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (session_id, day) DO UPDATE SET
			reason = EXCLUDED.reason,
			judgements = EXCLUDED.judgements,
			wrong = EXCLUDED.wrong,
			income = EXCLUDED.income,
			perfect_bonus = EXCLUDED.perfect_bonus,
			penalty = EXCLUDED.penalty,
			bribe = EXCLUDED.bribe,
			expense = EXCLUDED.expense,
			balance = EXCLUDED.balance,
			fired_ending = EXCLUDED.fired_ending,
			bankrupt_ending = EXCLUDED.bankrupt_ending,
			completed = EXCLUDED.completed,
			next_day_punished = EXCLUDED.next_day_punished,
			settled_at = EXCLUDED.settled_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.Day, s.Reason, s.Judgements, s.Wrong, s.Income, s.PerfectBonus, s.Penalty, s.Bribe,
		s.Expense, s.Balance, s.FiredEnding, s.BankruptEnding, s.Completed, s.NextDayPunished, s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record day summary: %w", err)
	}
	return nil
}

// GetBySession retrieves every recorded day of a session, oldest first.
func (r *PostgresSummaryRepository) GetBySession(ctx context.Context, sessionID string) ([]DaySummaryRecord, error) {
	query := `SELECT session_id, day, reason, judgements, wrong, income, perfect_bonus, penalty, bribe, expense, balance, fired_ending, bankrupt_ending, completed, next_day_punished, settled_at FROM day_summaries WHERE session_id = $1 ORDER BY day ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query day summaries: %w", err)
	}
	defer rows.Close()

	var out []DaySummaryRecord
	for rows.Next() {
		var s DaySummaryRecord
		if err := rows.Scan(&s.SessionID, &s.Day, &s.Reason, &s.Judgements, &s.Wrong, &s.Income, &s.PerfectBonus,
			&s.Penalty, &s.Bribe, &s.Expense, &s.Balance, &s.FiredEnding, &s.BankruptEnding, &s.Completed,
			&s.NextDayPunished, &s.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan day summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ EventRepository   = (*PostgresEventRepository)(nil)
	_ SummaryRepository = (*PostgresSummaryRepository)(nil)
)
