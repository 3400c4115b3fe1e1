package storage

import (
	"context"
	"fmt"
)

// Impact classifications for recap entries.
const (
	ImpactPositive = "POSITIVE"
	ImpactNegative = "NEGATIVE"
	ImpactNeutral  = "NEUTRAL"
)

// RecapEntry is a simplified event for the day history screen.
type RecapEntry struct {
	ClockTime string `json:"clock_time"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"`
}

// DayRecap is the readable history of one day.
type DayRecap struct {
	Day     int               `json:"day"`
	Entries []RecapEntry      `json:"entries"`
	Summary *DaySummaryRecord `json:"summary,omitempty"`
}

// Reconstructor turns journal rows into a readable day history. It only
// reads the journal; nothing it returns feeds back into the simulation.
type Reconstructor struct {
	eventRepo   EventRepository
	summaryRepo SummaryRepository
}

// NewReconstructor creates a recap builder. summaryRepo may be nil.
func NewReconstructor(eventRepo EventRepository, summaryRepo SummaryRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo, summaryRepo: summaryRepo}
}

// GenerateRecap builds the history of one day. Clock ticks are omitted.
func (r *Reconstructor) GenerateRecap(ctx context.Context, sessionID string, day int) (*DayRecap, error) {
	dayEvents, err := r.eventRepo.GetByGameDay(ctx, sessionID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for day %d: %w", day, err)
	}

	recap := &DayRecap{Day: day, Entries: make([]RecapEntry, 0, len(dayEvents))}
	for _, e := range dayEvents {
		if e.EventType == "TIME_TICK" {
			continue
		}
		recap.Entries = append(recap.Entries, RecapEntry{
			ClockTime: clockLabel(e.SimMinute),
			EventType: e.EventType,
			Summary:   summarizeEvent(e),
			Impact:    determineImpact(e),
		})
	}

	if r.summaryRepo != nil {
		summaries, err := r.summaryRepo.GetBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get day summaries: %w", err)
		}
		for i := range summaries {
			if summaries[i].Day == day {
				recap.Summary = &summaries[i]
				break
			}
		}
	}
	return recap, nil
}

func clockLabel(minute int) string {
	if minute < 0 {
		minute = 0
	}
	return fmt.Sprintf("%02d:%02d", (minute/60)%24, minute%60)
}

func payloadString(e JournalEvent, key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

func payloadBool(e JournalEvent, key string) bool {
	v, _ := e.Payload[key].(bool)
	return v
}

func payloadNumber(e JournalEvent, key string) float64 {
	v, _ := e.Payload[key].(float64)
	return v
}

// summarizeEvent creates a human-readable summary.
func summarizeEvent(e JournalEvent) string {
	switch e.EventType {
	case "DAY_STARTED":
		if payloadBool(e, "punished") {
			return fmt.Sprintf("Day %d started late after a bad previous day.", e.GameDay)
		}
		return fmt.Sprintf("Day %d started.", e.GameDay)
	case "ITEM_DISPATCHED":
		return fmt.Sprintf("Work item %s arrived for review.", e.TargetID)
	case "JUDGEMENT":
		verdict := payloadString(e, "decision")
		if payloadBool(e, "wrong") {
			return fmt.Sprintf("%s was judged %s, which was wrong.", payloadString(e, "work_item_id"), verdict)
		}
		return fmt.Sprintf("%s was judged %s correctly.", payloadString(e, "work_item_id"), verdict)
	case "MIDNIGHT_PASSED":
		return "Midnight passed with work still in the queue."
	case "REPORT_ARMED":
		return fmt.Sprintf("A follow-up report (%s) is on its way.", e.TargetID)
	case "NOTIFICATION_DELIVERED":
		return fmt.Sprintf("Mail %s was delivered.", e.TargetID)
	case "QUEUE_EXHAUSTED":
		return "The queue was cleared."
	case "SHIFT_ENDED":
		return fmt.Sprintf("The shift ended before the queue was cleared (%s).", payloadString(e, "reason"))
	case "DAY_SETTLED":
		return fmt.Sprintf("Day settled with a balance of %.0f.", payloadNumber(e, "balance"))
	case "CONFIGURATION_MISSING":
		return "No work was planned for this day."
	default:
		return "Something happened during the shift."
	}
}

// determineImpact classifies the event impact.
func determineImpact(e JournalEvent) string {
	switch e.EventType {
	case "JUDGEMENT":
		if payloadBool(e, "wrong") {
			return ImpactNegative
		}
		return ImpactPositive
	case "MIDNIGHT_PASSED", "REPORT_ARMED", "SHIFT_ENDED":
		return ImpactNegative
	case "QUEUE_EXHAUSTED":
		return ImpactPositive
	case "DAY_SETTLED":
		if payloadBool(e, "fired_ending") || payloadBool(e, "bankrupt_ending") {
			return ImpactNegative
		}
		return ImpactNeutral
	default:
		return ImpactNeutral
	}
}
