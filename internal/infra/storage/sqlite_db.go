package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the SQLite journal and creates its schema. ":memory:"
// opens a private in-memory database on a single connection.
func InitSQLite(dbPath string) (*sql.DB, error) {
	inMemory := dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
	if !inMemory {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSQLiteSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSQLiteSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			game_day INTEGER NOT NULL,
			sim_minute INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_game_day ON events(session_id, game_day);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(session_id, event_type);`,
		`CREATE TABLE IF NOT EXISTS day_summaries (
			session_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			reason TEXT NOT NULL,
			judgements INTEGER NOT NULL,
			wrong INTEGER NOT NULL,
			income INTEGER NOT NULL,
			perfect_bonus INTEGER NOT NULL,
			penalty INTEGER NOT NULL,
			bribe INTEGER NOT NULL,
			expense INTEGER NOT NULL,
			balance INTEGER NOT NULL,
			fired_ending BOOLEAN NOT NULL DEFAULT 0,
			bankrupt_ending BOOLEAN NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT 0,
			next_day_punished BOOLEAN NOT NULL DEFAULT 0,
			settled_at TEXT NOT NULL,
			PRIMARY KEY (session_id, day)
		);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
