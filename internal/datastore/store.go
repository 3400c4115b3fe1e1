// Package datastore loads the work-item, notification and day tables the
// shift runs on. Tables are YAML (JSON is accepted as a subset). Loading can
// run on a background goroutine; Loaded is the readiness query the engine
// polls before starting day 1.
package datastore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
)

// Table file names inside a data directory.
const (
	WorkItemsFile     = "work_items.yaml"
	NotificationsFile = "notifications.yaml"
	DaysFile          = "days.yaml"
)

var (
	// ErrDuplicateIdentifier marks a table row whose id was already loaded.
	// The later row is dropped.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrMissingExpectedDecision marks a work item without should_approve.
	// The item is dropped.
	ErrMissingExpectedDecision = errors.New("missing expected decision")
)

type workItemRecord struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Submitter          string   `yaml:"submitter"`
	SubmitTime         string   `yaml:"submit_time"`
	Version            string   `yaml:"version"`
	Files              []string `yaml:"files"`
	Description        string   `yaml:"description"`
	ScreenshotID       string   `yaml:"screenshot_id"`
	ShouldApprove      *bool    `yaml:"should_approve"`
	ReportNotification string   `yaml:"report_notification"`
	BribeIfWrong       int64    `yaml:"bribe_if_wrong"`
}

type notificationRecord struct {
	ID     string `yaml:"id"`
	Sender string `yaml:"sender"`
	Title  string `yaml:"title"`
	Body   string `yaml:"body"`
}

type dayRecord struct {
	Day             int      `yaml:"day"`
	PreShiftMail    []string `yaml:"pre_shift_mail"`
	WorkItems       []string `yaml:"work_items"`
	DurationSeconds float64  `yaml:"duration_seconds"`
}

type workItemTable struct {
	WorkItems []workItemRecord `yaml:"work_items"`
}

type notificationTable struct {
	Notifications []notificationRecord `yaml:"notifications"`
}

type dayTable struct {
	Days []dayRecord `yaml:"days"`
}

// Store is the in-memory data tables. Lookups are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	workItems     map[string]workitem.WorkItem
	notifications map[string]workitem.Notification
	days          map[int]workitem.DayPlan
	warnings      []error

	loaded atomic.Bool
	logger *logger.Logger
}

// New creates an empty, not-yet-loaded store.
func New(log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		workItems:     make(map[string]workitem.WorkItem),
		notifications: make(map[string]workitem.Notification),
		days:          make(map[int]workitem.DayPlan),
		logger:        log,
	}
}

// LoadDir reads the three tables from dir and marks the store loaded.
func (s *Store) LoadDir(dir string) error {
	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	items, err := read(WorkItemsFile)
	if err != nil {
		return err
	}
	notes, err := read(NotificationsFile)
	if err != nil {
		return err
	}
	days, err := read(DaysFile)
	if err != nil {
		return err
	}
	return s.LoadBytes(items, notes, days)
}

// LoadBytes parses the three tables and marks the store loaded. Duplicate
// ids and items without an expected decision are dropped with a warning;
// only malformed YAML fails the load.
func (s *Store) LoadBytes(workItems, notifications, days []byte) error {
	var wt workItemTable
	if err := yaml.Unmarshal(workItems, &wt); err != nil {
		return fmt.Errorf("parse %s: %w", WorkItemsFile, err)
	}
	var nt notificationTable
	if err := yaml.Unmarshal(notifications, &nt); err != nil {
		return fmt.Errorf("parse %s: %w", NotificationsFile, err)
	}
	var dt dayTable
	if err := yaml.Unmarshal(days, &dt); err != nil {
		return fmt.Errorf("parse %s: %w", DaysFile, err)
	}

	s.mu.Lock()
	for _, r := range wt.WorkItems {
		if _, dup := s.workItems[r.ID]; dup {
			s.warn(fmt.Errorf("work item %q: %w", r.ID, ErrDuplicateIdentifier))
			continue
		}
		if r.ShouldApprove == nil {
			s.warn(fmt.Errorf("work item %q: %w", r.ID, ErrMissingExpectedDecision))
			continue
		}
		bribe := r.BribeIfWrong
		if bribe < 0 {
			bribe = 0
		}
		s.workItems[r.ID] = workitem.WorkItem{
			ID:                   r.ID,
			Expected:             workitem.DecisionFromApproval(*r.ShouldApprove),
			FollowUpNotification: r.ReportNotification,
			Bribe:                bribe,
			Title:                r.Title,
			Submitter:            r.Submitter,
			SubmitTime:           r.SubmitTime,
			Version:              r.Version,
			Files:                r.Files,
			Description:          r.Description,
			ScreenshotID:         r.ScreenshotID,
		}
	}
	for _, r := range nt.Notifications {
		if _, dup := s.notifications[r.ID]; dup {
			s.warn(fmt.Errorf("notification %q: %w", r.ID, ErrDuplicateIdentifier))
			continue
		}
		s.notifications[r.ID] = workitem.Notification{ID: r.ID, Sender: r.Sender, Title: r.Title, Body: r.Body}
	}
	for _, r := range dt.Days {
		if _, dup := s.days[r.Day]; dup {
			s.warn(fmt.Errorf("day %d: %w", r.Day, ErrDuplicateIdentifier))
			continue
		}
		s.days[r.Day] = workitem.DayPlan{
			Day:          r.Day,
			WorkItems:    r.WorkItems,
			PreShiftMail: r.PreShiftMail,
			DurationSecs: r.DurationSeconds,
		}
	}
	counts := []any{"work_items", len(s.workItems), "notifications", len(s.notifications), "days", len(s.days), "warnings", len(s.warnings)}
	s.mu.Unlock()

	s.loaded.Store(true)
	s.logger.Info("data tables loaded", counts...)
	return nil
}

// warn records a dropped row. Caller holds mu.
func (s *Store) warn(err error) {
	s.warnings = append(s.warnings, err)
	s.logger.Warn("dropping table row", "error", err)
}

// Loaded reports whether the tables are ready.
func (s *Store) Loaded() bool {
	return s.loaded.Load()
}

// Warnings returns the rows dropped during loading.
func (s *Store) Warnings() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.warnings...)
}

// WorkItem looks up a work item by id.
func (s *Store) WorkItem(id string) (workitem.WorkItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workItems[id]
	return w, ok
}

// Notification looks up a notification by id.
func (s *Store) Notification(id string) (workitem.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok
}

// DayPlan looks up the plan for a day.
func (s *Store) DayPlan(day int) (workitem.DayPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.days[day]
	return p, ok
}

// Days returns the number of planned days.
func (s *Store) Days() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.days)
}
