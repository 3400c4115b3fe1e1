// Package ledger holds the operator's money and judgement counters.
// This package is PURE and must NOT import any infrastructure packages.
//
// Balance only moves at settlement. Bribes earned during the day accrue in
// BribeToday and are folded into the balance by Settle, never before.
package ledger

// Rules are the economic parameters applied at day-end settlement.
type Rules struct {
	StartingBalance int64   `yaml:"starting_balance" json:"starting_balance"`
	PerItemReward   int64   `yaml:"per_item_reward" json:"per_item_reward"`
	FullBonus       int64   `yaml:"full_bonus" json:"full_bonus"`
	PenaltyLadder   []int64 `yaml:"penalty_ladder" json:"penalty_ladder"`
	DailyLivingCost int64   `yaml:"daily_living_cost" json:"daily_living_cost"`
	FiredThreshold  int     `yaml:"fired_threshold" json:"fired_threshold"`
}

// DefaultRules returns the stock economy.
func DefaultRules() Rules {
	return Rules{
		StartingBalance: 100,
		PerItemReward:   15,
		FullBonus:       20,
		PenaltyLadder:   []int64{0, 0, -20, -60, -130},
		DailyLivingCost: 75,
		FiredThreshold:  5,
	}
}

// Penalty returns the ladder entry for the given wrong count, clamped to the
// ladder bounds. An empty ladder never penalises.
func (r Rules) Penalty(wrong int) int64 {
	if len(r.PenaltyLadder) == 0 {
		return 0
	}
	idx := wrong
	if idx < 0 {
		idx = 0
	}
	if idx > len(r.PenaltyLadder)-1 {
		idx = len(r.PenaltyLadder) - 1
	}
	return r.PenaltyLadder[idx]
}

// Ledger tracks per-day and global counters plus the running balance.
type Ledger struct {
	// Per-day, zeroed by ResetDaily.
	JudgementsToday int
	WrongToday      int
	TodayExpense    int64
	BribeToday      int64

	// Cross-day, never reset.
	GlobalJudgements int
	GlobalWrong      int

	balance int64
}

// New creates a ledger opened with the given balance.
func New(startingBalance int64) *Ledger {
	return &Ledger{balance: startingBalance}
}

// Balance returns the settled balance.
func (l *Ledger) Balance() int64 {
	return l.balance
}

// RecordJudgement counts one resolved work item. A wrong judgement also
// accrues the item's bribe; negative bribes are treated as zero.
func (l *Ledger) RecordJudgement(wrong bool, bribe int64) {
	l.JudgementsToday++
	l.GlobalJudgements++
	if !wrong {
		return
	}
	l.WrongToday++
	l.GlobalWrong++
	if bribe > 0 {
		l.BribeToday += bribe
	}
}

// ResetDaily zeroes the per-day counters. Global counters and the balance
// are untouched.
func (l *Ledger) ResetDaily() {
	l.JudgementsToday = 0
	l.WrongToday = 0
	l.TodayExpense = 0
	l.BribeToday = 0
}

// Settlement is the breakdown of one day-end settlement.
type Settlement struct {
	Judgements   int   `json:"judgements"`
	Wrong        int   `json:"wrong"`
	Correct      int   `json:"correct"`
	Income       int64 `json:"income"`
	PerfectBonus int64 `json:"perfect_bonus"`
	Penalty      int64 `json:"penalty"`
	Bribe        int64 `json:"bribe"`
	Expense      int64 `json:"expense"`
	Delta        int64 `json:"delta"`
	Balance      int64 `json:"balance"`
	Fired        bool  `json:"fired"`
	Bankrupt     bool  `json:"bankrupt"`
}

// Settle applies the day's results to the balance. It is the only mutator
// of the balance and must run exactly once per day.
func (l *Ledger) Settle(r Rules) Settlement {
	correct := l.JudgementsToday - l.WrongToday
	income := int64(correct) * r.PerItemReward

	var perfect int64
	if l.WrongToday == 0 && l.JudgementsToday > 0 {
		perfect = r.FullBonus
	}

	penalty := r.Penalty(l.WrongToday)
	l.TodayExpense = r.DailyLivingCost

	delta := income + perfect + penalty + l.BribeToday - l.TodayExpense
	l.balance += delta

	return Settlement{
		Judgements:   l.JudgementsToday,
		Wrong:        l.WrongToday,
		Correct:      correct,
		Income:       income,
		PerfectBonus: perfect,
		Penalty:      penalty,
		Bribe:        l.BribeToday,
		Expense:      l.TodayExpense,
		Delta:        delta,
		Balance:      l.balance,
		Fired:        r.FiredThreshold > 0 && l.WrongToday >= r.FiredThreshold,
		Bankrupt:     l.balance < 0,
	}
}
