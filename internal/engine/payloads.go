package engine

import (
	"time"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

// TickPayload is attached to TIME_TICK events.
type TickPayload struct {
	GameDay     int    `json:"game_day"`
	SimMinute   int    `json:"sim_minute"`
	TickNumber  int64  `json:"tick_number"`
	DisplayTime string `json:"display_time"`
}

// DayStartedPayload is attached to DAY_STARTED events.
type DayStartedPayload struct {
	DayStart
	GameDay      int   `json:"game_day"`
	QueueLength  int   `json:"queue_length"`
	PreShiftMail int   `json:"pre_shift_mail"`
	Balance      int64 `json:"balance"`
}

// JudgementPayload is attached to JUDGEMENT events. The expected decision
// is never included.
type JudgementPayload struct {
	WorkItemID      string            `json:"work_item_id"`
	Decision        workitem.Decision `json:"decision"`
	Wrong           bool              `json:"wrong"`
	JudgementsToday int               `json:"judgements_today"`
	WrongToday      int               `json:"wrong_today"`
}

// ReportArmedPayload is attached to REPORT_ARMED events.
type ReportArmedPayload struct {
	Delivery Delivery  `json:"delivery"`
	Deadline time.Time `json:"deadline"`
}

// DeliveredPayload is attached to NOTIFICATION_DELIVERED events.
type DeliveredPayload struct {
	Delivery     Delivery              `json:"delivery"`
	Notification workitem.Notification `json:"notification"`
	Duplicate    bool                  `json:"duplicate,omitempty"`
}

// ShiftState is a copy of the controller's per-day state.
type ShiftState struct {
	Phase                Phase    `json:"phase"`
	Day                  int      `json:"day"`
	Minute               int      `json:"minute"`
	DisplayTime          string   `json:"display_time"`
	Queue                []string `json:"queue"`
	Cursor               int      `json:"cursor"`
	Punished             bool     `json:"punished"`
	MidnightPenaltyArmed bool     `json:"midnight_penalty_armed"`
	Completed            bool     `json:"completed"`
	AwaitingAdvance      bool     `json:"awaiting_advance"`
	Balance              int64    `json:"balance"`
	PendingReports       int      `json:"pending_reports"`
}
