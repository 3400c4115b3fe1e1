package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bugshift/internal/domain/ledger"
	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

type recordingArmer struct {
	armed  []Delivery
	delays []float64
}

func (a *recordingArmer) Arm(p Delivery, delay float64) ScheduledAction {
	a.armed = append(a.armed, p)
	a.delays = append(a.delays, delay)
	return ScheduledAction{Payload: p, Deadline: epoch.Add(time.Duration(delay) * time.Second)}
}

func threeItems() []workitem.WorkItem {
	return []workitem.WorkItem{
		{ID: "B1", Expected: workitem.DecisionApprove},
		{ID: "B2", Expected: workitem.DecisionReject, FollowUpNotification: "R2", Bribe: 30},
		{ID: "B3", Expected: workitem.DecisionApprove},
	}
}

func TestResolveAdvancesQueue(t *testing.T) {
	l := ledger.New(100)
	a := &recordingArmer{}
	r := NewResolver(l, a, 20)
	r.Load(threeItems())

	view, ok := r.DispatchNext()
	require.True(t, ok)
	assert.Equal(t, "B1", view.ID)

	res, err := r.Resolve(workitem.DecisionApprove, 1, 610)
	require.NoError(t, err)
	assert.False(t, res.Record.Wrong)
	require.NotNil(t, res.Next)
	assert.Equal(t, "B2", res.Next.ID)
	assert.Nil(t, res.Armed)
	assert.Equal(t, 1, r.Cursor())
}

func TestWrongJudgementArmsReportAndAccruesBribe(t *testing.T) {
	l := ledger.New(100)
	a := &recordingArmer{}
	r := NewResolver(l, a, 20)
	r.Load(threeItems())
	r.DispatchNext()
	r.Resolve(workitem.DecisionApprove, 1, 610)

	res, err := r.Resolve(workitem.DecisionApprove, 1, 620)
	require.NoError(t, err)
	assert.True(t, res.Record.Wrong)
	require.NotNil(t, res.Armed)
	assert.Equal(t, Delivery{NotificationID: "R2", WorkItemID: "B2", Day: 1, ArmedAtMinute: 620}, a.armed[0])
	assert.Equal(t, []float64{20}, a.delays)

	assert.Equal(t, 1, l.WrongToday)
	assert.EqualValues(t, 30, l.BribeToday)
	assert.EqualValues(t, 100, l.Balance(), "bribe must not reach the balance before settlement")
}

func TestWrongJudgementWithoutFollowUpArmsNothing(t *testing.T) {
	l := ledger.New(100)
	a := &recordingArmer{}
	r := NewResolver(l, a, 20)
	r.Load(threeItems())
	r.DispatchNext()

	res, err := r.Resolve(workitem.DecisionReject, 1, 610)
	require.NoError(t, err)
	assert.True(t, res.Record.Wrong)
	assert.Nil(t, res.Armed)
	assert.Empty(t, a.armed)
}

func TestResolveLastItemCompletes(t *testing.T) {
	l := ledger.New(100)
	r := NewResolver(l, nil, 20)
	r.Load(threeItems()[:1])
	r.DispatchNext()

	res, err := r.Resolve(workitem.DecisionApprove, 1, 610)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Nil(t, res.Next)
	assert.True(t, r.Completed())
	assert.Equal(t, r.Len(), r.Cursor())

	_, err = r.Resolve(workitem.DecisionApprove, 1, 620)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
	assert.Equal(t, 1, l.JudgementsToday, "a rejected resolve leaves the ledger alone")
}

func TestResolveWithoutDispatchFails(t *testing.T) {
	r := NewResolver(ledger.New(0), nil, 20)
	r.Load(threeItems())
	_, err := r.Resolve(workitem.DecisionApprove, 1, 600)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
}

func TestResolveUnknownDecision(t *testing.T) {
	l := ledger.New(0)
	r := NewResolver(l, nil, 20)
	r.Load(threeItems())
	r.DispatchNext()

	_, err := r.Resolve(workitem.Decision("MAYBE"), 1, 600)
	assert.True(t, errors.Is(err, ErrUnknownDecision))
	assert.Zero(t, r.Cursor())
	assert.Zero(t, l.JudgementsToday)
}

func TestEmptyQueueCompletesOnDispatch(t *testing.T) {
	r := NewResolver(ledger.New(0), nil, 20)
	r.Load(nil)
	_, ok := r.DispatchNext()
	assert.False(t, ok)
	assert.True(t, r.Completed())
}

func TestLoadRewinds(t *testing.T) {
	r := NewResolver(ledger.New(0), nil, 20)
	r.Load(threeItems())
	r.DispatchNext()
	r.Resolve(workitem.DecisionApprove, 1, 600)

	r.Load(threeItems()[1:])
	assert.Zero(t, r.Cursor())
	assert.False(t, r.Completed())
	assert.Equal(t, []string{"B2", "B3"}, r.QueueIDs())
	_, ok := r.Current()
	assert.False(t, ok)
}

func TestResolverInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("queue and ledger counters stay consistent", prop.ForAll(
		func(truths []bool, answers []bool) bool {
			items := make([]workitem.WorkItem, len(truths))
			for i, approve := range truths {
				items[i] = workitem.WorkItem{
					ID:                   string(rune('A' + i%26)),
					Expected:             workitem.DecisionFromApproval(approve),
					FollowUpNotification: "R",
					Bribe:                int64(i),
				}
			}
			l := ledger.New(0)
			a := &recordingArmer{}
			r := NewResolver(l, a, 20)
			r.Load(items)
			r.DispatchNext()

			wantWrong := 0
			for i, approve := range answers {
				_, err := r.Resolve(workitem.DecisionFromApproval(approve), 1, 600)
				if i >= len(items) {
					if !errors.Is(err, ErrInvalidStateTransition) {
						return false
					}
					continue
				}
				if err != nil {
					return false
				}
				if approve != truths[i] {
					wantWrong++
				}
			}

			if r.Cursor() < 0 || r.Cursor() > r.Len() {
				return false
			}
			if r.Completed() != (r.Cursor() == r.Len()) {
				return false
			}
			if l.WrongToday != wantWrong || len(a.armed) != wantWrong {
				return false
			}
			return l.WrongToday <= l.JudgementsToday && l.JudgementsToday <= r.Len()
		},
		gen.SliceOfN(8, gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
