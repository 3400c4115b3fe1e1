package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/infra/storage"
	"github.com/MRamiBalles/bugshift/internal/mail"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
)

// StatusReader exposes the engine's last frame snapshot.
type StatusReader interface {
	Status() engine.Status
	LastSummary() (engine.DaySummary, bool)
}

// InboxLister lists received notifications.
type InboxLister interface {
	List() []mail.Entry
}

// HistorySource builds a readable recap of one settled or running day.
type HistorySource interface {
	GenerateRecap(ctx context.Context, sessionID string, day int) (*storage.DayRecap, error)
}

// APIHandler serves the read-only HTTP API and the command endpoint.
type APIHandler struct {
	status    StatusReader
	submitter Submitter
	inbox     InboxLister
	history   HistorySource
	sessionID string
	logger    *logger.Logger
}

// NewAPIHandler creates the HTTP API. history may be nil when no journal is
// configured.
func NewAPIHandler(status StatusReader, submitter Submitter, inbox InboxLister, history HistorySource, sessionID string, log *logger.Logger) *APIHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &APIHandler{
		status:    status,
		submitter: submitter,
		inbox:     inbox,
		history:   history,
		sessionID: sessionID,
		logger:    log,
	}
}

// InboxResponse is the API response for the inbox.
type InboxResponse struct {
	Unread  int          `json:"unread"`
	Entries []mail.Entry `json:"entries"`
}

// HandleStatus returns the current shift status.
// GET /api/status
func (a *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writeJSON(w, http.StatusOK, a.status.Status())
}

// HandleSummary returns the most recent day-end summary.
// GET /api/summary
func (a *APIHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary, ok := a.status.LastSummary()
	if !ok {
		a.jsonError(w, "No day has been settled yet", http.StatusNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

// HandleInbox returns received notifications, newest first.
// GET /api/inbox
func (a *APIHandler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := a.inbox.List()
	unread := 0
	for _, e := range entries {
		if !e.Read {
			unread++
		}
	}
	a.writeJSON(w, http.StatusOK, InboxResponse{Unread: unread, Entries: entries})
}

// HandleHistory returns the journal recap of one day.
// GET /api/history?day=N
func (a *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.history == nil {
		a.jsonError(w, "History journal not configured", http.StatusServiceUnavailable)
		return
	}

	day := a.status.Status().Day
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		parsed, err := strconv.Atoi(dayStr)
		if err != nil || parsed < 1 {
			a.jsonError(w, "Invalid day", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	recap, err := a.history.GenerateRecap(ctx, a.sessionID, day)
	if err != nil {
		a.logger.Error("failed to build day history", "day", day, "error", err)
		a.jsonError(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusOK, recap)
}

// HandleCommand runs one operator command and returns its result.
// POST /api/command
func (a *APIHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg ClientMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&msg); err != nil {
		a.jsonError(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	res, err := a.submitter.Submit(ctx, msg.command())
	if err != nil {
		a.writeJSON(w, commandStatus(err), ServerMessage{Kind: KindError, RequestID: msg.RequestID, Code: errorCode(err), Error: err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, ServerMessage{Kind: KindResult, RequestID: msg.RequestID, Result: &res})
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownDecision), errors.Is(err, engine.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// RegisterRoutes sets up the API routes.
func (a *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.HandleStatus)
	mux.HandleFunc("/api/summary", a.HandleSummary)
	mux.HandleFunc("/api/inbox", a.HandleInbox)
	mux.HandleFunc("/api/history", a.HandleHistory)
	mux.HandleFunc("/api/command", a.HandleCommand)
}

func (a *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", "error", err)
	}
}

// jsonError sends an error response.
func (a *APIHandler) jsonError(w http.ResponseWriter, message string, status int) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
