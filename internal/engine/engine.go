package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/platform/clock"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
	"github.com/MRamiBalles/bugshift/internal/platform/metrics"
)

// Inbox is the notification store the engine delivers into and the
// operator reads from.
type Inbox interface {
	Mailbox
	Read(id string) (workitem.Notification, bool)
	Next() (workitem.Notification, bool)
	UnreadCount() int
}

// Config tunes the engine.
type Config struct {
	Shift         ShiftConfig
	FrameRate     int
	CommandBuffer int
}

// DefaultConfig returns the stock shift at 20 frames per second.
func DefaultConfig() Config {
	return Config{Shift: DefaultShiftConfig(), FrameRate: 20, CommandBuffer: 64}
}

// CommandType names an operator command.
type CommandType string

const (
	CommandResolve  CommandType = "RESOLVE"
	CommandProceed  CommandType = "PROCEED"
	CommandEndShift CommandType = "END_SHIFT"
	CommandReadMail CommandType = "READ_MAIL"
)

// Command is an operator request executed on the frame goroutine.
type Command struct {
	Type           CommandType       `json:"type"`
	Decision       workitem.Decision `json:"decision,omitempty"`
	NotificationID string            `json:"notification_id,omitempty"`
}

// Result is what a command produced.
type Result struct {
	Judgement    *workitem.JudgementRecord `json:"judgement,omitempty"`
	Notification *workitem.Notification    `json:"notification,omitempty"`
	Status       Status                    `json:"status"`
}

// LedgerView is the presentation-safe part of the ledger.
type LedgerView struct {
	JudgementsToday  int   `json:"judgements_today"`
	WrongToday       int   `json:"wrong_today"`
	BribeToday       int64 `json:"bribe_today"`
	GlobalJudgements int   `json:"global_judgements"`
	GlobalWrong      int   `json:"global_wrong"`
}

// Status is a read-only snapshot of the simulation taken at the end of a
// frame.
type Status struct {
	ShiftState
	Ledger               LedgerView     `json:"ledger"`
	CurrentItem          *workitem.View `json:"current_item,omitempty"`
	Summary              *DaySummary    `json:"summary,omitempty"`
	UnreadMail           int            `json:"unread_mail"`
	MinutesPerRealSecond float64        `json:"minutes_per_real_second"`
	NextDayPunished      bool           `json:"next_day_punished"`
}

type envelope struct {
	cmd   Command
	reply chan reply
}

type reply struct {
	result Result
	err    error
}

// Engine is the single simulation context. It owns one controller, one
// scheduler and one ledger, and touches them only from the goroutine that
// calls Frame.
type Engine struct {
	cfg        Config
	clock      clock.Clock
	data       DataSource
	inbox      Inbox
	eventLog   events.Sink
	logger     *logger.Logger
	metrics    *metrics.Collector
	controller *Controller

	settledSeen int

	commands chan envelope
	done     chan struct{}
	stopOnce sync.Once

	snapMu      sync.RWMutex
	snapshot    Status
	lastSummary *DaySummary
}

// NewEngine wires the simulation. metrics may be nil.
func NewEngine(cfg Config, clk clock.Clock, data DataSource, inbox Inbox, eventLog events.Sink, log *logger.Logger, m *metrics.Collector) *Engine {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 20
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 64
	}
	e := &Engine{
		cfg:      cfg,
		clock:    clk,
		data:     data,
		inbox:    inbox,
		eventLog: eventLog,
		logger:   log,
		metrics:  m,
		commands: make(chan envelope, cfg.CommandBuffer),
		done:     make(chan struct{}),
	}
	e.controller = NewController(cfg.Shift, clk, data, inbox, eventLog, DelivererFunc(e.deliver), log.With("shift"))
	e.refreshSnapshot()
	return e
}

// Run drives frames until ctx is cancelled. Commands submitted after Run
// returns fail with ErrEngineStopped.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Starting shift engine", "frame_rate", e.cfg.FrameRate)
	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.FrameRate))
	defer ticker.Stop()
	defer e.stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Shift engine stopped")
			return
		case <-ticker.C:
			e.Frame()
		}
	}
}

func (e *Engine) stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		for {
			select {
			case env := <-e.commands:
				env.reply <- reply{err: ErrEngineStopped}
			default:
				return
			}
		}
	})
}

// Frame runs one frame: the controller, then queued commands, then the
// controller again, then the scheduler, then the snapshot. It never blocks.
func (e *Engine) Frame() {
	start := time.Now()

	ticks := e.controller.Poll()

drain:
	for {
		select {
		case env := <-e.commands:
			res, err := e.Execute(env.cmd)
			env.reply <- reply{result: res, err: err}
		default:
			break drain
		}
	}

	ticks += e.controller.Poll()
	e.controller.PollScheduler()
	e.recordSettlements()

	e.refreshSnapshot()
	e.metrics.RecordFrame(time.Since(start), ticks)
}

// Submit queues cmd for the next frame and waits for its result.
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	env := envelope{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case e.commands <- env:
	case <-e.done:
		return Result{}, ErrEngineStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-env.reply:
		return r.result, r.err
	case <-e.done:
		// stop() answers everything still queued; a command taken by the
		// final frame has already replied.
		select {
		case r := <-env.reply:
			return r.result, r.err
		default:
			return Result{}, ErrEngineStopped
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Execute runs cmd immediately. It must only be called from the goroutine
// that drives Frame; transports use Submit.
func (e *Engine) Execute(cmd Command) (Result, error) {
	var res Result
	var err error

	switch cmd.Type {
	case CommandResolve:
		decision, perr := workitem.ParseDecision(string(cmd.Decision))
		if perr != nil {
			err = fmt.Errorf("decision %q: %w", cmd.Decision, ErrUnknownDecision)
			break
		}
		var rec workitem.JudgementRecord
		rec, err = e.controller.Resolve(decision)
		if err == nil {
			res.Judgement = &rec
			e.metrics.RecordJudgement(rec.Wrong)
		}
	case CommandProceed:
		err = e.controller.ProceedToNextDay()
	case CommandEndShift:
		err = e.controller.EndShift()
	case CommandReadMail:
		var n workitem.Notification
		n, err = e.readMail(cmd.NotificationID)
		if err == nil {
			res.Notification = &n
		}
	default:
		err = fmt.Errorf("command %q: %w", cmd.Type, ErrUnknownCommand)
	}

	e.recordSettlements()
	if err != nil {
		e.metrics.RecordCommandError()
		if !errors.Is(err, ErrInvalidStateTransition) {
			e.logger.Warn("command rejected", "command", string(cmd.Type), "error", err)
		}
	}
	e.refreshSnapshot()
	res.Status = e.Status()
	return res, err
}

func (e *Engine) readMail(id string) (workitem.Notification, error) {
	if e.inbox == nil {
		return workitem.Notification{}, ErrNotificationNotFound
	}
	if id == "" {
		n, ok := e.inbox.Next()
		if !ok {
			return workitem.Notification{}, fmt.Errorf("no unread mail: %w", ErrNotificationNotFound)
		}
		return n, nil
	}
	n, ok := e.inbox.Read(id)
	if !ok {
		return workitem.Notification{}, fmt.Errorf("notification %q: %w", id, ErrNotificationNotFound)
	}
	return n, nil
}

// deliver receives fired report deliveries from the scheduler.
func (e *Engine) deliver(d Delivery) {
	e.metrics.RecordDelivery(1)
	n, ok := e.data.Notification(d.NotificationID)
	if !ok {
		e.logger.Warn("deferred notification not found", "notification", d.NotificationID, "work_item", d.WorkItemID)
		return
	}
	fresh := e.inbox != nil && e.inbox.Enqueue(n)
	if e.eventLog != nil {
		e.eventLog.Append(events.GameEvent{
			Timestamp: e.clock.Now(),
			Type:      events.EventTypeNotificationDelivered,
			ActorID:   events.ActorSystem,
			TargetID:  n.ID,
			Payload:   DeliveredPayload{Delivery: d, Notification: n, Duplicate: !fresh},
			GameDay:   e.controller.Day(),
			SimMinute: e.controller.Minute(),
		})
	}
}

func (e *Engine) recordSettlements() {
	for n := e.controller.SettledDays(); e.settledSeen < n; e.settledSeen++ {
		e.metrics.RecordSettlement()
	}
}

func (e *Engine) refreshSnapshot() {
	c := e.controller
	l := c.Ledger()
	s := Status{
		ShiftState: c.State(),
		Ledger: LedgerView{
			JudgementsToday:  l.JudgementsToday,
			WrongToday:       l.WrongToday,
			BribeToday:       l.BribeToday,
			GlobalJudgements: l.GlobalJudgements,
			GlobalWrong:      l.GlobalWrong,
		},
		MinutesPerRealSecond: c.DayClock().MinutesPerRealSecond(),
		NextDayPunished:      c.DayClock().NextDayPunished(),
	}
	if item, ok := c.CurrentItem(); ok {
		s.CurrentItem = &item
	}
	var last *DaySummary
	if sum, ok := c.Summary(); ok {
		last = &sum
		if c.Phase() == PhaseAwaitingAdvance {
			s.Summary = &sum
		}
	}
	if e.inbox != nil {
		s.UnreadMail = e.inbox.UnreadCount()
	}

	e.snapMu.Lock()
	e.snapshot = s
	if last != nil {
		e.lastSummary = last
	}
	e.snapMu.Unlock()
}

// Status returns the snapshot taken at the end of the last frame. It is
// safe to call from any goroutine.
func (e *Engine) Status() Status {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	s := e.snapshot
	s.Queue = append([]string(nil), s.Queue...)
	return s
}

// LastSummary returns the most recent day-end summary. It stays available
// after the next day starts; Status().Summary is only set while the day-end
// screen is showing.
func (e *Engine) LastSummary() (DaySummary, bool) {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.lastSummary == nil {
		return DaySummary{}, false
	}
	return *e.lastSummary, true
}

// Controller exposes the shift controller to the frame goroutine.
func (e *Engine) Controller() *Controller {
	return e.controller
}
