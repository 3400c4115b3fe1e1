package engine

import (
	"fmt"

	"github.com/MRamiBalles/bugshift/internal/domain/ledger"
	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/platform/clock"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
)

// Phase is the controller's position in the day cycle.
type Phase string

const (
	PhaseIdle            Phase = "IDLE"
	PhaseRunning         Phase = "RUNNING"
	PhaseSettling        Phase = "SETTLING"
	PhaseAwaitingAdvance Phase = "AWAITING_ADVANCE"
)

// Ending is a terminal verdict reported with a day summary. The controller
// does not stop on an ending; the caller decides.
type Ending string

const (
	EndingNone     Ending = ""
	EndingFired    Ending = "FIRED"
	EndingBankrupt Ending = "BANKRUPT"
)

// Reasons a day ended.
const (
	EndReasonQueueExhausted = "QUEUE_EXHAUSTED"
	EndReasonEndOfShift     = "END_OF_SHIFT"
	EndReasonClockedOut     = "CLOCKED_OUT"
)

// DataSource is the read-only view of the loaded data tables.
type DataSource interface {
	Loaded() bool
	DayPlan(day int) (workitem.DayPlan, bool)
	WorkItem(id string) (workitem.WorkItem, bool)
	Notification(id string) (workitem.Notification, bool)
}

// Mailbox receives pre-shift mail. Enqueue returns false for duplicates.
type Mailbox interface {
	Enqueue(n workitem.Notification) bool
}

// ShiftConfig bundles the controller's tuning.
type ShiftConfig struct {
	Clock              ClockConfig
	Economy            ledger.Rules
	ReportDelayMinutes float64
}

// DefaultShiftConfig returns the stock clock and economy.
func DefaultShiftConfig() ShiftConfig {
	return ShiftConfig{
		Clock:              DefaultClockConfig(),
		Economy:            ledger.DefaultRules(),
		ReportDelayMinutes: 20,
	}
}

// DaySummary is what the day-end screen shows.
type DaySummary struct {
	Day             int    `json:"day"`
	Reason          string `json:"reason"`
	Judgements      int    `json:"judgements"`
	Wrong           int    `json:"wrong"`
	Expense         int64  `json:"expense"`
	Income          int64  `json:"income"`
	PerfectBonus    int64  `json:"perfect_bonus"`
	Penalty         int64  `json:"penalty"`
	Bribe           int64  `json:"bribe"`
	Balance         int64  `json:"balance"`
	FiredEnding     bool   `json:"fired_ending"`
	BankruptEnding  bool   `json:"bankrupt_ending"`
	Completed       bool   `json:"completed"`
	MidnightPassed  bool   `json:"midnight_passed"`
	EndMinute       int    `json:"end_minute"`
	NextDayPunished bool   `json:"next_day_punished"`
}

// Ending returns the most severe verdict in the summary.
func (s DaySummary) Ending() Ending {
	switch {
	case s.FiredEnding:
		return EndingFired
	case s.BankruptEnding:
		return EndingBankrupt
	}
	return EndingNone
}

// Controller drives the day cycle: readiness, day start, tick thresholds,
// judgement resolution and settlement.
type Controller struct {
	cfg       ShiftConfig
	clock     clock.Clock
	data      DataSource
	mail      Mailbox
	sink      events.Sink
	logger    *logger.Logger
	ledger    *ledger.Ledger
	dayClock  *DayClock
	resolver  *Resolver
	scheduler *Scheduler

	phase         Phase
	day           int
	dayStart      DayStart
	midnightArmed bool
	lateFinish    bool
	summary       *DaySummary
	settled       int
}

// NewController wires the day clock, resolver and scheduler around one
// ledger. deliver receives fired report deliveries.
func NewController(cfg ShiftConfig, clk clock.Clock, data DataSource, mail Mailbox, sink events.Sink, deliver Deliverer, log *logger.Logger) *Controller {
	l := ledger.New(cfg.Economy.StartingBalance)
	dc := NewDayClock(cfg.Clock)
	sched := NewScheduler(clk, dc, deliver)
	return &Controller{
		cfg:       cfg,
		clock:     clk,
		data:      data,
		mail:      mail,
		sink:      sink,
		logger:    log,
		ledger:    l,
		dayClock:  dc,
		resolver:  NewResolver(l, sched, cfg.ReportDelayMinutes),
		scheduler: sched,
		phase:     PhaseIdle,
	}
}

// Poll advances the controller. While idle it checks data readiness and
// starts day 1 once the tables are loaded; while running it processes the
// clock backlog. It never blocks.
func (c *Controller) Poll() int {
	switch c.phase {
	case PhaseIdle:
		if c.data == nil || !c.data.Loaded() {
			return 0
		}
		c.startDay(1)
		return 0
	case PhaseRunning:
		return c.dayClock.Poll(c.clock.Now(), c.onTick)
	}
	return 0
}

// onTick runs the per-tick threshold checks in order: midnight, then
// end-of-shift.
func (c *Controller) onTick(minute int) bool {
	c.emit(events.EventTypeTimeTick, events.ActorSystem, "", TickPayload{
		GameDay:     c.day,
		SimMinute:   minute,
		TickNumber:  c.dayClock.Ticks(),
		DisplayTime: FormatMinute(minute, c.cfg.Clock.StepMinutes),
	})

	if !c.midnightArmed && !c.resolver.Completed() && minute >= c.cfg.Clock.MidnightMinute {
		c.midnightArmed = true
		c.emit(events.EventTypeMidnightPassed, events.ActorSystem, "", nil)
		c.logger.Warn("midnight passed with work outstanding", "day", c.day, "minute", minute)
	}

	if minute >= c.cfg.Clock.ShiftEndMinute {
		c.dayClock.ClampTo(c.cfg.Clock.ShiftEndMinute)
		c.endDay(EndReasonEndOfShift)
		return false
	}
	return true
}

// catchUp processes the clock backlog so a command sees the current minute.
// The backlog may end the day.
func (c *Controller) catchUp() int {
	if c.phase != PhaseRunning {
		return 0
	}
	return c.dayClock.Poll(c.clock.Now(), c.onTick)
}

// Resolve judges the dispatched work item. Time that elapsed since the last
// poll is applied first, so a judgement after end-of-shift is rejected.
func (c *Controller) Resolve(decision workitem.Decision) (workitem.JudgementRecord, error) {
	c.catchUp()
	if c.phase != PhaseRunning {
		return workitem.JudgementRecord{}, fmt.Errorf("resolve in phase %s: %w", c.phase, ErrInvalidStateTransition)
	}
	minute := c.dayClock.Minute()
	res, err := c.resolver.Resolve(decision, c.day, minute)
	if err != nil {
		return workitem.JudgementRecord{}, err
	}

	c.emit(events.EventTypeJudgement, events.ActorOperator, res.Record.WorkItemID, JudgementPayload{
		WorkItemID:      res.Record.WorkItemID,
		Decision:        res.Record.Decision,
		Wrong:           res.Record.Wrong,
		JudgementsToday: c.ledger.JudgementsToday,
		WrongToday:      c.ledger.WrongToday,
	})
	if res.Record.Wrong {
		c.logger.Event("WRONG_JUDGEMENT", events.ActorOperator, fmt.Sprintf("Day %d: %s judged %s", c.day, res.Record.WorkItemID, res.Record.Decision))
	}
	if res.Armed != nil {
		c.emit(events.EventTypeReportArmed, events.ActorSystem, res.Armed.Payload.NotificationID, ReportArmedPayload{
			Delivery: res.Armed.Payload,
			Deadline: res.Armed.Deadline,
		})
	}

	if res.Next != nil {
		c.emit(events.EventTypeItemDispatched, events.ActorSystem, res.Next.ID, *res.Next)
	} else {
		c.queueExhausted(minute)
	}
	return res.Record, nil
}

// EndShift lets the operator clock out early. The day settles as not
// completed.
func (c *Controller) EndShift() error {
	c.catchUp()
	if c.phase != PhaseRunning {
		return fmt.Errorf("end shift in phase %s: %w", c.phase, ErrInvalidStateTransition)
	}
	c.endDay(EndReasonClockedOut)
	return nil
}

// ProceedToNextDay is the external confirmation after the day-end summary.
func (c *Controller) ProceedToNextDay() error {
	if c.phase != PhaseAwaitingAdvance {
		return fmt.Errorf("proceed in phase %s: %w", c.phase, ErrInvalidStateTransition)
	}
	c.ledger.ResetDaily()
	c.startDay(c.day + 1)
	return nil
}

func (c *Controller) startDay(day int) {
	c.day = day
	c.midnightArmed = false
	c.lateFinish = false
	c.summary = nil

	plan, ok := c.data.DayPlan(day)
	if !ok {
		c.logger.Warn("no day plan, running an empty day", "day", day, "error", ErrConfigurationMissing)
		c.emit(events.EventTypeConfigurationMissing, events.ActorSystem, "", map[string]any{"day": day})
		plan = workitem.DayPlan{Day: day}
	}

	items := make([]workitem.WorkItem, 0, len(plan.WorkItems))
	for _, id := range plan.WorkItems {
		item, found := c.data.WorkItem(id)
		if !found {
			c.logger.Warn("day plan references unknown work item, skipping", "day", day, "work_item", id)
			continue
		}
		items = append(items, item)
	}

	c.dayStart = c.dayClock.StartDay(c.clock.Now(), plan.DurationSecs)
	c.phase = PhaseRunning

	mailed := 0
	for _, id := range plan.PreShiftMail {
		n, found := c.data.Notification(id)
		if !found {
			c.logger.Warn("pre-shift mail not found", "day", day, "notification", id)
			continue
		}
		if c.mail != nil && c.mail.Enqueue(n) {
			mailed++
		}
	}

	c.emit(events.EventTypeDayStarted, events.ActorSystem, "", DayStartedPayload{
		DayStart:     c.dayStart,
		GameDay:      day,
		QueueLength:  len(items),
		PreShiftMail: mailed,
		Balance:      c.ledger.Balance(),
	})
	c.logger.Info("day started",
		"day", day,
		"punished", c.dayStart.Punished,
		"start_minute", c.dayStart.StartMinute,
		"queue", len(items),
		"minutes_per_second", c.dayStart.MinutesPerRealSecond,
	)

	c.resolver.Load(items)
	c.dispatchFirstItem()
}

func (c *Controller) dispatchFirstItem() {
	view, ok := c.resolver.DispatchNext()
	if !ok {
		c.queueExhausted(c.dayClock.Minute())
		return
	}
	c.emit(events.EventTypeItemDispatched, events.ActorSystem, view.ID, view)
}

func (c *Controller) queueExhausted(minute int) {
	if minute >= c.cfg.Clock.MidnightMinute {
		c.lateFinish = true
	}
	c.emit(events.EventTypeQueueExhausted, events.ActorSystem, "", nil)
	c.endDay(EndReasonQueueExhausted)
}

// endDay runs settlement and parks the controller until ProceedToNextDay.
func (c *Controller) endDay(reason string) {
	c.phase = PhaseSettling
	c.dayClock.Freeze()

	completed := c.resolver.Completed()
	if !completed {
		c.emit(events.EventTypeShiftEnded, events.ActorSystem, "", map[string]any{"reason": reason})
	}

	s := c.ledger.Settle(c.cfg.Economy)
	punishNext := c.midnightArmed || !completed || c.lateFinish
	c.dayClock.SetCarryover(punishNext)

	summary := DaySummary{
		Day:             c.day,
		Reason:          reason,
		Judgements:      s.Judgements,
		Wrong:           s.Wrong,
		Expense:         s.Expense,
		Income:          s.Income,
		PerfectBonus:    s.PerfectBonus,
		Penalty:         s.Penalty,
		Bribe:           s.Bribe,
		Balance:         s.Balance,
		FiredEnding:     s.Fired,
		BankruptEnding:  s.Bankrupt,
		Completed:       completed,
		MidnightPassed:  c.midnightArmed,
		EndMinute:       c.dayClock.Minute(),
		NextDayPunished: punishNext,
	}
	c.summary = &summary
	c.settled++

	c.emit(events.EventTypeDaySettled, events.ActorSystem, "", summary)
	c.logger.Event("DAY_SETTLED", events.ActorSystem, fmt.Sprintf("Day %d settled (%s): %d judged, %d wrong, balance %d",
		summary.Day, reason, summary.Judgements, summary.Wrong, summary.Balance))
	if ending := summary.Ending(); ending != EndingNone {
		c.logger.Warn("ending reached", "day", c.day, "ending", string(ending))
	}

	c.phase = PhaseAwaitingAdvance
}

func (c *Controller) emit(t events.EventType, actor, target string, payload any) {
	if c.sink == nil {
		return
	}
	c.sink.Append(events.GameEvent{
		Timestamp: c.clock.Now(),
		Type:      t,
		ActorID:   actor,
		TargetID:  target,
		Payload:   payload,
		GameDay:   c.day,
		SimMinute: c.dayClock.Minute(),
	})
}

// PollScheduler fires due deliveries. It is independent of the phase.
func (c *Controller) PollScheduler() int {
	return c.scheduler.Poll()
}

// SettledDays counts settlements since the controller was created.
func (c *Controller) SettledDays() int { return c.settled }

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

// Day returns the current day number; zero before day 1 starts.
func (c *Controller) Day() int { return c.day }

// Minute returns the simulated minute.
func (c *Controller) Minute() int { return c.dayClock.Minute() }

// DisplayTime returns HH:MM snapped to the quantization step.
func (c *Controller) DisplayTime() string { return c.dayClock.DisplayTime() }

// Balance returns the settled balance.
func (c *Controller) Balance() int64 { return c.ledger.Balance() }

// Ledger exposes the counters for read access.
func (c *Controller) Ledger() ledger.Ledger { return *c.ledger }

// DayClock exposes the clock for read access.
func (c *Controller) DayClock() *DayClock { return c.dayClock }

// Scheduler exposes the deferred action queue.
func (c *Controller) Scheduler() *Scheduler { return c.scheduler }

// CurrentItem returns the dispatched work item.
func (c *Controller) CurrentItem() (workitem.View, bool) {
	if c.phase != PhaseRunning {
		return workitem.View{}, false
	}
	return c.resolver.Current()
}

// Summary returns the last day-end summary while awaiting advance.
func (c *Controller) Summary() (DaySummary, bool) {
	if c.summary == nil {
		return DaySummary{}, false
	}
	return *c.summary, true
}

// State returns a copy of today's shift state.
func (c *Controller) State() ShiftState {
	return ShiftState{
		Phase:                c.phase,
		Day:                  c.day,
		Minute:               c.dayClock.Minute(),
		DisplayTime:          c.dayClock.DisplayTime(),
		Queue:                c.resolver.QueueIDs(),
		Cursor:               c.resolver.Cursor(),
		Punished:             c.dayClock.Punished(),
		MidnightPenaltyArmed: c.midnightArmed,
		Completed:            c.resolver.Completed(),
		AwaitingAdvance:      c.phase == PhaseAwaitingAdvance,
		Balance:              c.ledger.Balance(),
		PendingReports:       c.scheduler.Pending(),
	}
}
