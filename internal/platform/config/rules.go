package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/bugshift/internal/domain/ledger"
	"github.com/MRamiBalles/bugshift/internal/engine"
)

// Rules is the shift tuning file. Omitted keys keep their defaults.
type Rules struct {
	Economy            ledger.Rules       `yaml:"economy"`
	Clock              engine.ClockConfig `yaml:"clock"`
	ReportDelayMinutes float64            `yaml:"report_delay_minutes"`
}

// DefaultRules returns the stock economy and clock.
func DefaultRules() Rules {
	sc := engine.DefaultShiftConfig()
	return Rules{Economy: sc.Economy, Clock: sc.Clock, ReportDelayMinutes: sc.ReportDelayMinutes}
}

// ParseRules decodes data over the defaults and validates the result.
func ParseRules(data []byte) (Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// LoadRules reads a rules file. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules %q: %w", path, err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return Rules{}, fmt.Errorf("rules %q: %w", path, err)
	}
	return r, nil
}

// Validate checks the clock and economy.
func (r Rules) Validate() error {
	if err := r.Clock.Validate(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if r.Economy.FiredThreshold <= 0 {
		return fmt.Errorf("economy: fired_threshold must be positive, got %d", r.Economy.FiredThreshold)
	}
	if r.Economy.PerItemReward < 0 || r.Economy.FullBonus < 0 || r.Economy.DailyLivingCost < 0 {
		return fmt.Errorf("economy: rewards and living cost must not be negative")
	}
	if r.ReportDelayMinutes < 0 {
		return fmt.Errorf("report_delay_minutes must not be negative")
	}
	return nil
}

// ShiftConfig converts the rules for the engine.
func (r Rules) ShiftConfig() engine.ShiftConfig {
	return engine.ShiftConfig{Clock: r.Clock, Economy: r.Economy, ReportDelayMinutes: r.ReportDelayMinutes}
}
