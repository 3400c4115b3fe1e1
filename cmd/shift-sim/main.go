// Package main runs scripted shifts headlessly against a manual clock and
// prints each day's settlement.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MRamiBalles/bugshift/internal/datastore"
	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/infra/storage"
	"github.com/MRamiBalles/bugshift/internal/mail"
	"github.com/MRamiBalles/bugshift/internal/platform/clock"
	"github.com/MRamiBalles/bugshift/internal/platform/config"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
)

type options struct {
	dataDir      string
	rulesFile    string
	days         int
	accuracy     float64
	think        time.Duration
	seed         int64
	stopOnEnding bool
	journal      string
	verbose      bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.dataDir, "data", "data", "directory holding the YAML data tables")
	flag.StringVar(&o.rulesFile, "rules", "", "optional rules YAML")
	flag.IntVar(&o.days, "days", 0, "days to simulate (0 = every planned day)")
	flag.Float64Var(&o.accuracy, "accuracy", 0.9, "probability of judging an item correctly, 0..1")
	flag.DurationVar(&o.think, "think", 20*time.Second, "real time spent on each item")
	flag.Int64Var(&o.seed, "seed", 1, "random seed for the decision policy")
	flag.BoolVar(&o.stopOnEnding, "stop-on-ending", false, "exit with status 2 when an ending flag is raised")
	flag.StringVar(&o.journal, "journal", "", "optional SQLite path to journal the run")
	flag.BoolVar(&o.verbose, "v", false, "log engine events")
	flag.Parse()
	return o
}

// policy decides like an operator who is right with probability accuracy.
type policy struct {
	rng      *rand.Rand
	accuracy float64
}

func (p policy) decide(item workitem.WorkItem) workitem.Decision {
	if p.rng.Float64() < p.accuracy {
		return item.Expected
	}
	if item.Expected == workitem.DecisionApprove {
		return workitem.DecisionReject
	}
	return workitem.DecisionApprove
}

func main() {
	o := parseFlags()
	if o.accuracy < 0 || o.accuracy > 1 {
		config.Exitf("accuracy must be within 0..1, got %v", o.accuracy)
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log := logger.NewWithOptions(logger.Options{Level: level, Output: os.Stderr})

	rules, err := config.LoadRules(o.rulesFile)
	if err != nil {
		config.Exitf("rules: %v", err)
	}

	store := datastore.New(log)
	if err := store.LoadDir(o.dataDir); err != nil {
		config.Exitf("data tables: %v", err)
	}
	for _, w := range store.Warnings() {
		log.Warn("Data table warning", "error", w)
	}
	if o.days <= 0 {
		o.days = store.Days()
	}

	var persister events.EventPersister
	if o.journal != "" {
		db, err := storage.InitSQLite(o.journal)
		if err != nil {
			config.Exitf("journal: %v", err)
		}
		defer db.Close()
		persister = storage.NewJournalPersister(storage.NewSQLiteEventRepository(db), storage.NewSQLiteSummaryRepository(db), "sim")
	}
	eventLog := events.NewEventLog(persister)
	defer eventLog.Close()

	clk := clock.NewManual(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	cfg := engine.DefaultConfig()
	cfg.Shift = rules.ShiftConfig()
	eng := engine.NewEngine(cfg, clk, store, mail.NewInbox(), eventLog, log, nil)

	code := run(o, eng, clk, store, policy{rng: rand.New(rand.NewSource(o.seed)), accuracy: o.accuracy})
	eventLog.Close()
	if code != 0 {
		os.Exit(code)
	}
}

// run plays o.days days and returns the process exit code.
func run(o options, eng *engine.Engine, clk *clock.Manual, store *datastore.Store, p policy) int {
	frame := time.Second / 20

	eng.Frame()
	for day := 1; day <= o.days; day++ {
		for eng.Status().Phase == engine.PhaseRunning {
			view := eng.Status().CurrentItem
			if view == nil {
				clk.Advance(frame)
				eng.Frame()
				continue
			}
			// Work happens in real time; the clock may end the shift first.
			for spent := time.Duration(0); spent < o.think && eng.Status().Phase == engine.PhaseRunning; spent += frame {
				clk.Advance(frame)
				eng.Frame()
			}
			if eng.Status().Phase != engine.PhaseRunning {
				break
			}
			item, ok := store.WorkItem(view.ID)
			if !ok {
				fmt.Fprintf(os.Stderr, "work item %s vanished from the tables\n", view.ID)
				return 1
			}
			if _, err := eng.Execute(engine.Command{Type: engine.CommandResolve, Decision: p.decide(item)}); err != nil {
				fmt.Fprintf(os.Stderr, "resolve %s: %v\n", view.ID, err)
				return 1
			}
		}

		summary, ok := eng.LastSummary()
		if !ok {
			fmt.Fprintf(os.Stderr, "day %d ended without a summary\n", day)
			return 1
		}
		printSummary(summary)

		if summary.Ending() != engine.EndingNone && o.stopOnEnding {
			fmt.Printf("Ending reached: %s\n", summary.Ending())
			return 2
		}
		if day == o.days {
			break
		}
		if _, err := eng.Execute(engine.Command{Type: engine.CommandProceed}); err != nil {
			fmt.Fprintf(os.Stderr, "proceed: %v\n", err)
			return 1
		}
	}
	return 0
}

func printSummary(s engine.DaySummary) {
	fmt.Printf("%s day (%s)\n", humanize.Ordinal(s.Day), s.Reason)
	fmt.Printf("  judgements  %d (%d wrong)\n", s.Judgements, s.Wrong)
	fmt.Printf("  income      %s\n", humanize.Comma(s.Income))
	fmt.Printf("  bonus       %s\n", humanize.Comma(s.PerfectBonus))
	fmt.Printf("  penalty     %s\n", humanize.Comma(s.Penalty))
	fmt.Printf("  bribes      %s\n", humanize.Comma(s.Bribe))
	fmt.Printf("  expenses    %s\n", humanize.Comma(s.Expense))
	fmt.Printf("  balance     %s\n", humanize.Comma(s.Balance))
	if s.NextDayPunished {
		fmt.Println("  tomorrow starts late")
	}
	if e := s.Ending(); e != engine.EndingNone {
		fmt.Printf("  ending      %s\n", e)
	}
}
