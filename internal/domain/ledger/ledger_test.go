package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettleOneWrongOfThree(t *testing.T) {
	l := New(100)
	l.RecordJudgement(false, 0)
	l.RecordJudgement(true, 12)
	l.RecordJudgement(false, 0)

	s := l.Settle(DefaultRules())

	assert.Equal(t, 3, s.Judgements)
	assert.Equal(t, 1, s.Wrong)
	assert.Equal(t, int64(30), s.Income)
	assert.Equal(t, int64(0), s.PerfectBonus)
	assert.Equal(t, int64(0), s.Penalty)
	assert.Equal(t, int64(12), s.Bribe)
	assert.Equal(t, int64(75), s.Expense)
	assert.Equal(t, int64(30+12-75), s.Delta)
	assert.Equal(t, int64(100+30+12-75), l.Balance())
	assert.False(t, s.Fired)
	assert.False(t, s.Bankrupt)
}

func TestPerfectBonusNeedsAtLeastOneJudgement(t *testing.T) {
	l := New(0)
	s := l.Settle(DefaultRules())
	assert.Equal(t, int64(0), s.PerfectBonus)
	assert.Equal(t, int64(-75), l.Balance())
	assert.True(t, s.Bankrupt)

	l.ResetDaily()
	l.RecordJudgement(false, 0)
	s = l.Settle(DefaultRules())
	assert.Equal(t, int64(20), s.PerfectBonus)
}

func TestPenaltyLadderClamps(t *testing.T) {
	r := DefaultRules()
	cases := map[int]int64{-1: 0, 0: 0, 1: 0, 2: -20, 3: -60, 4: -130, 9: -130}
	for wrong, want := range cases {
		assert.Equal(t, want, r.Penalty(wrong), "wrong=%d", wrong)
	}
	assert.Equal(t, int64(0), Rules{}.Penalty(3))
}

func TestBribeDoesNotTouchBalanceBeforeSettle(t *testing.T) {
	l := New(50)
	l.RecordJudgement(true, 40)
	l.RecordJudgement(true, -10)
	assert.Equal(t, int64(50), l.Balance())
	assert.Equal(t, int64(40), l.BribeToday)

	before := l.Balance()
	s := l.Settle(DefaultRules())
	withoutBribe := s.Income + s.PerfectBonus + s.Penalty - s.Expense
	assert.Equal(t, before+withoutBribe+40, l.Balance())
}

func TestResetDailyKeepsGlobals(t *testing.T) {
	l := New(10)
	l.RecordJudgement(true, 5)
	l.RecordJudgement(false, 0)
	l.Settle(DefaultRules())
	balance := l.Balance()

	l.ResetDaily()

	assert.Zero(t, l.JudgementsToday)
	assert.Zero(t, l.WrongToday)
	assert.Zero(t, l.TodayExpense)
	assert.Zero(t, l.BribeToday)
	assert.Equal(t, 2, l.GlobalJudgements)
	assert.Equal(t, 1, l.GlobalWrong)
	assert.Equal(t, balance, l.Balance())
}

func TestFiredThreshold(t *testing.T) {
	l := New(1000)
	for i := 0; i < 5; i++ {
		l.RecordJudgement(true, 0)
	}
	s := l.Settle(DefaultRules())
	assert.True(t, s.Fired)
	assert.Equal(t, int64(-130), s.Penalty)
}
