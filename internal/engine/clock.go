// Package engine contains the shift loop and simulation logic.
//
// ARCHITECTURAL RULE: every component here is owned by the frame goroutine.
// Transports never touch the Controller directly; they Submit commands to
// the Engine, which executes them between polls.
package engine

import (
	"fmt"
	"math"
	"time"
)

// ClockConfig tunes the simulated day. Minutes are counted from midnight of
// the day the shift starts, so values past 1440 belong to the next morning.
type ClockConfig struct {
	StepMinutes            int     `yaml:"step_minutes" json:"step_minutes"`
	ShiftStartMinute       int     `yaml:"shift_start_minute" json:"shift_start_minute"`
	PunishedStartMinute    int     `yaml:"punished_start_minute" json:"punished_start_minute"`
	ShiftEndMinute         int     `yaml:"shift_end_minute" json:"shift_end_minute"`
	MidnightMinute         int     `yaml:"midnight_minute" json:"midnight_minute"`
	DefaultDurationSeconds float64 `yaml:"default_duration_seconds" json:"default_duration_seconds"`
	PunishedDurationScale  float64 `yaml:"punished_duration_scale" json:"punished_duration_scale"`
}

// DefaultClockConfig returns a 10:00 to 02:00 shift in ten-minute steps that
// lasts ten real minutes.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		StepMinutes:            10,
		ShiftStartMinute:       600,
		PunishedStartMinute:    840,
		ShiftEndMinute:         1560,
		MidnightMinute:         1440,
		DefaultDurationSeconds: 600,
		PunishedDurationScale:  0.75,
	}
}

// Validate rejects configurations the clock cannot run.
func (c ClockConfig) Validate() error {
	switch {
	case c.StepMinutes <= 0:
		return fmt.Errorf("step_minutes must be positive, got %d", c.StepMinutes)
	case c.ShiftEndMinute <= c.ShiftStartMinute:
		return fmt.Errorf("shift_end_minute %d must be after shift_start_minute %d", c.ShiftEndMinute, c.ShiftStartMinute)
	case c.PunishedStartMinute < c.ShiftStartMinute || c.PunishedStartMinute >= c.ShiftEndMinute:
		return fmt.Errorf("punished_start_minute %d must fall inside the shift", c.PunishedStartMinute)
	case c.DefaultDurationSeconds <= 0:
		return fmt.Errorf("default_duration_seconds must be positive")
	case c.PunishedDurationScale <= 0 || c.PunishedDurationScale > 1:
		return fmt.Errorf("punished_duration_scale must be in (0, 1], got %v", c.PunishedDurationScale)
	}
	return nil
}

// DayStart describes how a day was set up.
type DayStart struct {
	StartMinute          int     `json:"start_minute"`
	EndMinute            int     `json:"end_minute"`
	Punished             bool    `json:"punished"`
	DurationSeconds      float64 `json:"duration_seconds"`
	MinutesPerRealSecond float64 `json:"minutes_per_real_second"`
}

// TickFunc receives each processed tick's simulated minute. Returning false
// stops the rest of the backlog.
type TickFunc func(minute int) bool

// DayClock turns elapsed real time into simulated ticks.
//
// The number of ticks due at real time t is floor((t - dayStart) / step),
// computed from absolute elapsed time, so the final state is the same no
// matter how often or how irregularly Poll is called.
type DayClock struct {
	cfg ClockConfig

	running      bool
	dayStartReal time.Time
	stepDuration time.Duration
	ratio        float64 // simulated minutes per real second
	startMinute  int
	minute       int
	ticks        int64
	punished     bool

	carryPunish bool
}

// NewDayClock creates a stopped clock.
func NewDayClock(cfg ClockConfig) *DayClock {
	return &DayClock{cfg: cfg, minute: cfg.ShiftStartMinute, startMinute: cfg.ShiftStartMinute}
}

// Config returns the clock's tuning.
func (c *DayClock) Config() ClockConfig {
	return c.cfg
}

// SetCarryover decides whether the next StartDay is punished.
func (c *DayClock) SetCarryover(punished bool) {
	c.carryPunish = punished
}

// NextDayPunished reports the pending carryover.
func (c *DayClock) NextDayPunished() bool {
	return c.carryPunish
}

// StartDay resets simulated time and starts ticking from now. It consumes
// the carryover flag. durationSeconds <= 0 selects the default duration.
//
// A punished day starts later and gets only a fraction of the real time, but
// the minutes-per-second ratio is still computed over the normal span, so it
// runs faster and is harder to finish.
func (c *DayClock) StartDay(now time.Time, durationSeconds float64) DayStart {
	if durationSeconds <= 0 {
		durationSeconds = c.cfg.DefaultDurationSeconds
	}
	punished := c.carryPunish
	c.carryPunish = false

	start := c.cfg.ShiftStartMinute
	effective := durationSeconds
	if punished {
		start = c.cfg.PunishedStartMinute
		effective = durationSeconds * c.cfg.PunishedDurationScale
	}

	span := float64(c.cfg.ShiftEndMinute - c.cfg.ShiftStartMinute)
	c.ratio = span / effective
	c.stepDuration = time.Duration(math.Round(float64(time.Second) * float64(c.cfg.StepMinutes) / c.ratio))
	if c.stepDuration <= 0 {
		c.stepDuration = time.Nanosecond
	}

	c.dayStartReal = now
	c.startMinute = start
	c.minute = start
	c.ticks = 0
	c.punished = punished
	c.running = true

	return DayStart{
		StartMinute:          start,
		EndMinute:            c.cfg.ShiftEndMinute,
		Punished:             punished,
		DurationSeconds:      effective,
		MinutesPerRealSecond: c.ratio,
	}
}

// Poll processes every tick due at now, in order, and returns how many were
// processed. A frozen clock processes nothing.
func (c *DayClock) Poll(now time.Time, onTick TickFunc) int {
	if !c.running {
		return 0
	}
	elapsed := now.Sub(c.dayStartReal)
	if elapsed < 0 {
		return 0
	}
	target := int64(elapsed / c.stepDuration)

	processed := 0
	for c.running && c.ticks < target {
		c.ticks++
		c.minute += c.cfg.StepMinutes
		processed++
		if onTick != nil && !onTick(c.minute) {
			break
		}
	}
	return processed
}

// Freeze stops tick processing until the next StartDay.
func (c *DayClock) Freeze() {
	c.running = false
}

// ClampTo caps simulated time at minute.
func (c *DayClock) ClampTo(minute int) {
	if c.minute > minute {
		c.minute = minute
	}
}

// Running reports whether ticks are being processed.
func (c *DayClock) Running() bool {
	return c.running
}

// Minute returns the current simulated minute.
func (c *DayClock) Minute() int {
	return c.minute
}

// Ticks returns the number of ticks processed since the day started.
func (c *DayClock) Ticks() int64 {
	return c.ticks
}

// Punished reports whether the current day started punished.
func (c *DayClock) Punished() bool {
	return c.punished
}

// StartMinute returns the minute the current day started at.
func (c *DayClock) StartMinute() int {
	return c.startMinute
}

// MinutesPerRealSecond is the current day's time compression.
func (c *DayClock) MinutesPerRealSecond() float64 {
	return c.ratio
}

// StepDuration is the real time between two ticks.
func (c *DayClock) StepDuration() time.Duration {
	return c.stepDuration
}

// DisplayTime formats the current minute as HH:MM snapped to the step.
func (c *DayClock) DisplayTime() string {
	return FormatMinute(c.minute, c.cfg.StepMinutes)
}

// FormatMinute renders a minute-of-day as HH:MM, snapped down to step and
// wrapped past midnight.
func FormatMinute(minute, step int) string {
	if step > 0 {
		minute = (minute / step) * step
	}
	if minute < 0 {
		minute = 0
	}
	hours := (minute / 60) % 24
	return fmt.Sprintf("%02d:%02d", hours, minute%60)
}
