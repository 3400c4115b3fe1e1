// Package workitem defines the core domain entities the operator reviews.
// This package is PURE and must NOT import any infrastructure packages.
package workitem

import (
	"fmt"
	"strings"
)

// Decision is the operator's verdict on a work item.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision accepts "approve"/"reject" in any case.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToUpper(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// DecisionFromApproval maps the table's should-approve flag to a Decision.
func DecisionFromApproval(approve bool) Decision {
	if approve {
		return DecisionApprove
	}
	return DecisionReject
}

// WorkItem is one submitted bug. Expected is the hidden ground truth and must
// never reach presentation; use View for that.
type WorkItem struct {
	ID                   string
	Expected             Decision
	FollowUpNotification string
	Bribe                int64

	Title        string
	Submitter    string
	SubmitTime   string
	Version      string
	Files        []string
	Description  string
	ScreenshotID string
}

// IsWrong reports whether decision disagrees with the hidden truth.
func (w WorkItem) IsWrong(decision Decision) bool {
	return decision != w.Expected
}

// View is the presentation-safe projection of a work item.
type View struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Submitter    string   `json:"submitter"`
	SubmitTime   string   `json:"submit_time"`
	Version      string   `json:"version"`
	Files        []string `json:"files,omitempty"`
	Description  string   `json:"description"`
	ScreenshotID string   `json:"screenshot_id,omitempty"`
}

// View strips the hidden fields.
func (w WorkItem) View() View {
	return View{
		ID:           w.ID,
		Title:        w.Title,
		Submitter:    w.Submitter,
		SubmitTime:   w.SubmitTime,
		Version:      w.Version,
		Files:        append([]string(nil), w.Files...),
		Description:  w.Description,
		ScreenshotID: w.ScreenshotID,
	}
}

// Notification is a mail delivered to the operator's inbox.
type Notification struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// DayPlan is the configuration for one simulated day.
type DayPlan struct {
	Day          int
	WorkItems    []string
	PreShiftMail []string
	DurationSecs float64 // zero means use the default
}

// JudgementRecord is produced once per resolved item and consumed
// immediately by the ledger and the scheduler.
type JudgementRecord struct {
	WorkItemID string   `json:"work_item_id"`
	Decision   Decision `json:"decision"`
	Wrong      bool     `json:"wrong"`
}
