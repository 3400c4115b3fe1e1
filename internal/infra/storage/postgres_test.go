package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEventRepository_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresEventRepository(db)
	e := journalEvent("e1", 1, 600, "DAY_STARTED")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_log")).
		WithArgs("e1", "s1", e.Timestamp, "DAY_STARTED", "SYSTEM", "", sqlmock.AnyArg(), 1, 600).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Append(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventRepository_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_log")).WillReturnError(boom)

	err = NewPostgresEventRepository(db).Append(context.Background(), journalEvent("e1", 1, 600, "DAY_STARTED"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestPostgresEventRepository_GetByGameDay(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "timestamp", "event_type", "actor_id", "target_id", "payload", "game_day", "sim_minute"}).
		AddRow("e1", "s1", ts, "JUDGEMENT", "OPERATOR", "B2", []byte(`{"wrong":true,"work_item_id":"B2"}`), 1, 620).
		AddRow("e2", "s1", ts, "QUEUE_EXHAUSTED", "SYSTEM", nil, []byte(`{}`), 1, 630)

	mock.ExpectQuery(regexp.QuoteMeta("FROM event_log WHERE session_id = $1 AND game_day = $2")).
		WithArgs("s1", 1).
		WillReturnRows(rows)

	got, err := NewPostgresEventRepository(db).GetByGameDay(context.Background(), "s1", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B2", got[0].TargetID)
	assert.Equal(t, true, got[0].Payload["wrong"])
	assert.Empty(t, got[1].TargetID)
	assert.Equal(t, 630, got[1].SimMinute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSummaryRepository_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := DaySummaryRecord{SessionID: "s1", Day: 1, Reason: "QUEUE_EXHAUSTED", Judgements: 3, Wrong: 1, Income: 30, Bribe: 30, Expense: 75, Balance: 85, Completed: true, SettledAt: time.Now()}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO day_summaries")).
		WithArgs("s1", 1, "QUEUE_EXHAUSTED", 3, 1, int64(30), int64(0), int64(0), int64(30), int64(75), int64(85), false, false, true, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewPostgresSummaryRepository(db).Record(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSummaryRepository_GetBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	settled := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"session_id", "day", "reason", "judgements", "wrong", "income", "perfect_bonus", "penalty", "bribe", "expense", "balance", "fired_ending", "bankrupt_ending", "completed", "next_day_punished", "settled_at"}).
		AddRow("s1", 1, "END_OF_SHIFT", 2, 2, 0, 0, -20, 10, 75, 15, false, false, false, true, settled)
	mock.ExpectQuery(regexp.QuoteMeta("FROM day_summaries WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnRows(rows)

	got, err := NewPostgresSummaryRepository(db).GetBySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, -20, got[0].Penalty)
	assert.True(t, got[0].NextDayPunished)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostgresSchemas(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS event_log")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_event_log_day")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS day_summaries")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, CreatePostgresSchemas(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
