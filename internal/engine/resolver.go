package engine

import (
	"fmt"

	"github.com/MRamiBalles/bugshift/internal/domain/ledger"
	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

// Armer schedules deferred deliveries. *Scheduler implements it.
type Armer interface {
	Arm(payload Delivery, delayMinutes float64) ScheduledAction
}

// Resolution is everything one Resolve call changed.
type Resolution struct {
	Record    workitem.JudgementRecord
	Item      workitem.WorkItem
	Armed     *ScheduledAction
	Next      *workitem.View
	Completed bool
}

// Resolver owns today's work queue and judges the operator's decisions
// against the hidden truth.
type Resolver struct {
	ledger      *ledger.Ledger
	armer       Armer
	reportDelay float64

	queue     []workitem.WorkItem
	cursor    int
	current   *workitem.WorkItem
	completed bool
}

// NewResolver creates a resolver writing to l and arming reports on a.
func NewResolver(l *ledger.Ledger, a Armer, reportDelayMinutes float64) *Resolver {
	return &Resolver{ledger: l, armer: a, reportDelay: reportDelayMinutes}
}

// Load replaces the queue for a new day and rewinds the cursor.
func (r *Resolver) Load(items []workitem.WorkItem) {
	r.queue = append([]workitem.WorkItem(nil), items...)
	r.cursor = 0
	r.current = nil
	r.completed = false
}

// DispatchNext presents the item at the cursor. When the cursor has reached
// the end of the queue the day is marked completed and ok is false.
func (r *Resolver) DispatchNext() (view workitem.View, ok bool) {
	if r.cursor >= len(r.queue) {
		r.current = nil
		r.completed = true
		return workitem.View{}, false
	}
	item := r.queue[r.cursor]
	r.current = &item
	return item.View(), true
}

// Resolve judges the dispatched item. The ledger is updated first, then the
// report is armed, then the queue advances.
func (r *Resolver) Resolve(decision workitem.Decision, day, minute int) (Resolution, error) {
	if decision != workitem.DecisionApprove && decision != workitem.DecisionReject {
		return Resolution{}, fmt.Errorf("decision %q: %w", decision, ErrUnknownDecision)
	}
	if r.completed {
		return Resolution{}, fmt.Errorf("resolve after queue completed: %w", ErrInvalidStateTransition)
	}
	if r.current == nil {
		return Resolution{}, fmt.Errorf("resolve with no dispatched item: %w", ErrInvalidStateTransition)
	}

	item := *r.current
	wrong := item.IsWrong(decision)
	res := Resolution{
		Record: workitem.JudgementRecord{WorkItemID: item.ID, Decision: decision, Wrong: wrong},
		Item:   item,
	}

	r.ledger.RecordJudgement(wrong, item.Bribe)

	if wrong && item.FollowUpNotification != "" && r.armer != nil {
		armed := r.armer.Arm(Delivery{
			NotificationID: item.FollowUpNotification,
			WorkItemID:     item.ID,
			Day:            day,
			ArmedAtMinute:  minute,
		}, r.reportDelay)
		res.Armed = &armed
	}

	r.cursor++
	if next, ok := r.DispatchNext(); ok {
		res.Next = &next
	} else {
		res.Completed = true
	}
	return res, nil
}

// Current returns the dispatched item's view.
func (r *Resolver) Current() (workitem.View, bool) {
	if r.current == nil {
		return workitem.View{}, false
	}
	return r.current.View(), true
}

// Cursor returns the index of the dispatched item.
func (r *Resolver) Cursor() int {
	return r.cursor
}

// Len returns today's queue length.
func (r *Resolver) Len() int {
	return len(r.queue)
}

// Completed reports whether the queue has been exhausted.
func (r *Resolver) Completed() bool {
	return r.completed
}

// QueueIDs returns today's work-item ids in order.
func (r *Resolver) QueueIDs() []string {
	ids := make([]string, len(r.queue))
	for i, item := range r.queue {
		ids[i] = item.ID
	}
	return ids
}
