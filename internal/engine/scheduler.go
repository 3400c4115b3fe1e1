package engine

import (
	"container/heap"
	"time"

	"github.com/MRamiBalles/bugshift/internal/platform/clock"
)

// Delivery is the payload of a deferred notification.
type Delivery struct {
	NotificationID string `json:"notification_id"`
	WorkItemID     string `json:"work_item_id"`
	Day            int    `json:"day"`
	ArmedAtMinute  int    `json:"armed_at_minute"`
}

// ScheduledAction is a delivery waiting for its real-time deadline.
type ScheduledAction struct {
	Payload  Delivery  `json:"payload"`
	ArmedAt  time.Time `json:"armed_at"`
	Deadline time.Time `json:"deadline"`
	seq      uint64
}

// Deliverer consumes fired actions.
type Deliverer interface {
	Deliver(Delivery)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(Delivery)

// Deliver calls f.
func (f DelivererFunc) Deliver(d Delivery) {
	if f == nil {
		return
	}
	f(d)
}

// RateSource exposes the current simulated-minutes-per-real-second ratio.
type RateSource interface {
	MinutesPerRealSecond() float64
}

// Scheduler fires deliveries once their real-time deadline passes. It is
// polled independently of the day clock and keeps firing while the day is
// frozen or between days.
type Scheduler struct {
	clock   clock.Clock
	rate    RateSource
	deliver Deliverer
	queue   actionQueue
	seq     uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler(clk clock.Clock, rate RateSource, deliver Deliverer) *Scheduler {
	return &Scheduler{clock: clk, rate: rate, deliver: deliver}
}

// Arm schedules payload delayMinutes simulated minutes from now. The delay is
// converted to real time with the ratio in force right now; later ratio
// changes do not move the deadline.
func (s *Scheduler) Arm(payload Delivery, delayMinutes float64) ScheduledAction {
	now := s.clock.Now()
	var delay time.Duration
	if ratio := s.rate.MinutesPerRealSecond(); ratio > 0 && delayMinutes > 0 {
		delay = time.Duration(delayMinutes / ratio * float64(time.Second))
	}
	s.seq++
	action := &ScheduledAction{
		Payload:  payload,
		ArmedAt:  now,
		Deadline: now.Add(delay),
		seq:      s.seq,
	}
	heap.Push(&s.queue, action)
	return *action
}

// Poll delivers every action whose deadline has passed, earliest first, and
// returns how many fired. Each action is delivered exactly once.
func (s *Scheduler) Poll() int {
	now := s.clock.Now()
	fired := 0
	for s.queue.Len() > 0 && !s.queue[0].Deadline.After(now) {
		action := heap.Pop(&s.queue).(*ScheduledAction)
		fired++
		if s.deliver != nil {
			s.deliver.Deliver(action.Payload)
		}
	}
	return fired
}

// Pending returns the number of armed actions.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// NextDeadline returns the earliest armed deadline.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].Deadline, true
}

// actionQueue orders by deadline, then by arm order.
type actionQueue []*ScheduledAction

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].Deadline.Equal(q[j].Deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].Deadline.Before(q[j].Deadline)
}

func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *actionQueue) Push(x any) {
	*q = append(*q, x.(*ScheduledAction))
}

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
