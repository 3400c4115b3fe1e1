package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/infra/storage"
	"github.com/MRamiBalles/bugshift/internal/mail"
)

type stubStatus struct {
	status  engine.Status
	summary *engine.DaySummary
}

func (s stubStatus) Status() engine.Status { return s.status }

func (s stubStatus) LastSummary() (engine.DaySummary, bool) {
	if s.summary == nil {
		return engine.DaySummary{}, false
	}
	return *s.summary, true
}

type stubHistory struct {
	gotSession string
	gotDay     int
	err        error
}

func (s *stubHistory) GenerateRecap(_ context.Context, sessionID string, day int) (*storage.DayRecap, error) {
	s.gotSession, s.gotDay = sessionID, day
	if s.err != nil {
		return nil, s.err
	}
	return &storage.DayRecap{Day: day, Entries: []storage.RecapEntry{{ClockTime: "10:00", EventType: "DAY_STARTED"}}}, nil
}

func newTestAPI(status stubStatus, sub Submitter, history HistorySource) (*http.ServeMux, *mail.Inbox) {
	inbox := mail.NewInbox()
	api := NewAPIHandler(status, sub, inbox, history, "local", nil)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return mux, inbox
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	st := stubStatus{status: engine.Status{ShiftState: engine.ShiftState{Phase: engine.PhaseRunning, Day: 2, Minute: 845, DisplayTime: "14:05"}}}
	mux, _ := newTestAPI(st, &fakeSubmitter{}, nil)

	rec := serve(mux, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Day)
	assert.Equal(t, "14:05", got.DisplayTime)

	rec = serve(mux, http.MethodPost, "/api/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	mux, _ := newTestAPI(stubStatus{}, &fakeSubmitter{}, nil)
	assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodGet, "/api/summary", "").Code)

	mux, _ = newTestAPI(stubStatus{summary: &engine.DaySummary{Day: 1, Balance: 85}}, &fakeSubmitter{}, nil)
	rec := serve(mux, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got engine.DaySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 85, got.Balance)
}

func TestInboxEndpoint(t *testing.T) {
	mux, inbox := newTestAPI(stubStatus{}, &fakeSubmitter{}, nil)
	inbox.Enqueue(workitem.Notification{ID: "WELCOME", Sender: "boss@corp"})
	inbox.Enqueue(workitem.Notification{ID: "R2", Sender: "qa@corp"})
	inbox.Read("WELCOME")

	rec := serve(mux, http.MethodGet, "/api/inbox", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got InboxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Unread)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "R2", got.Entries[0].ID)
}

func TestHistoryEndpoint(t *testing.T) {
	mux, _ := newTestAPI(stubStatus{}, &fakeSubmitter{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(mux, http.MethodGet, "/api/history?day=1", "").Code)

	history := &stubHistory{}
	st := stubStatus{status: engine.Status{ShiftState: engine.ShiftState{Day: 4}}}
	mux, _ = newTestAPI(st, &fakeSubmitter{}, history)

	rec := serve(mux, http.MethodGet, "/api/history?day=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local", history.gotSession)
	assert.Equal(t, 2, history.gotDay)

	serve(mux, http.MethodGet, "/api/history", "")
	assert.Equal(t, 4, history.gotDay, "defaults to the current day")

	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodGet, "/api/history?day=zero", "").Code)

	history.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, serve(mux, http.MethodGet, "/api/history?day=1", "").Code)
}

func TestCommandEndpoint(t *testing.T) {
	sub := &fakeSubmitter{}
	mux, _ := newTestAPI(stubStatus{}, sub, nil)

	rec := serve(mux, http.MethodPost, "/api/command", `{"request_id":"x","type":"RESOLVE","decision":"REJECT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg ServerMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, KindResult, msg.Kind)
	require.Len(t, sub.commands(), 1)
	assert.Equal(t, workitem.DecisionReject, sub.commands()[0].Decision)

	assert.Equal(t, http.StatusBadRequest, serve(mux, http.MethodPost, "/api/command", "{").Code)

	sub.fail(fmt.Errorf("proceed: %w", engine.ErrInvalidStateTransition))
	rec = serve(mux, http.MethodPost, "/api/command", `{"type":"PROCEED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, CodeInvalidTransition, msg.Code)
}
