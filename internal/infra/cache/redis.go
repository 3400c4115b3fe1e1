// Package cache provides Redis-based caching for quick status reads.
// The cache is never the source of truth; the engine's snapshot is.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is an interface for Redis operations.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
}

// StatusSource provides the status to mirror.
type StatusSource interface {
	Status() engine.Status
}

// StatusCache mirrors the engine's status and day summaries into Redis so
// other processes can read them without touching the engine.
type StatusCache struct {
	client     RedisClient
	sessionID  string
	expiration time.Duration
	source     StatusSource
	logger     *logger.Logger
	updates    chan events.GameEvent
	timeout    time.Duration

	// Settlements bypass the bounded queue so none is lost.
	mu      sync.Mutex
	settled []engine.DaySummary
	wake    chan struct{}
	dropped atomic.Int64
}

// NewStatusCache creates a cache for one session. source may be nil when
// only the direct setters are used.
func NewStatusCache(client RedisClient, sessionID string, source StatusSource, log *logger.Logger) *StatusCache {
	if log == nil {
		log = logger.Discard()
	}
	return &StatusCache{
		client:     client,
		sessionID:  sessionID,
		expiration: 15 * time.Minute,
		source:     source,
		logger:     log,
		updates:    make(chan events.GameEvent, 256),
		timeout:    2 * time.Second,
		wake:       make(chan struct{}, 1),
	}
}

// SetStatus caches the current status.
func (c *StatusCache) SetStatus(ctx context.Context, s engine.Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return c.client.Set(ctx, c.statusKey(), data, c.expiration)
}

// GetStatus retrieves the cached status.
func (c *StatusCache) GetStatus(ctx context.Context) (*engine.Status, error) {
	data, err := c.client.Get(ctx, c.statusKey())
	if err != nil {
		return nil, err
	}
	var s engine.Status
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &s, nil
}

// SetSummary caches the latest day-end summary and adds it to the per-day
// hash.
func (c *StatusCache) SetSummary(ctx context.Context, s engine.DaySummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, c.summaryKey(), data, c.expiration); err != nil {
		return err
	}
	return c.client.HSet(ctx, c.daysKey(), strconv.Itoa(s.Day), string(data))
}

// GetSummary retrieves the latest day-end summary.
func (c *StatusCache) GetSummary(ctx context.Context) (*engine.DaySummary, error) {
	data, err := c.client.Get(ctx, c.summaryKey())
	if err != nil {
		return nil, err
	}
	var s engine.DaySummary
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &s, nil
}

// GetDaySummaries retrieves every cached day summary keyed by day.
func (c *StatusCache) GetDaySummaries(ctx context.Context) (map[int]engine.DaySummary, error) {
	data, err := c.client.HGetAll(ctx, c.daysKey())
	if err != nil {
		return nil, err
	}
	out := make(map[int]engine.DaySummary, len(data))
	for field, jsonStr := range data {
		day, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad day field %q: %w", field, err)
		}
		var s engine.DaySummary
		if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary for day %d: %w", day, err)
		}
		out[day] = s
	}
	return out, nil
}

// Invalidate removes all cached state for the session.
func (c *StatusCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.statusKey(), c.summaryKey(), c.daysKey())
}

// Observe queues an event for the writer. It never blocks. Day settlements
// are always kept; other events are dropped when the writer falls behind,
// and the next one refreshes the status.
func (c *StatusCache) Observe(e events.GameEvent) {
	if e.Type == events.EventTypeDaySettled {
		if s, ok := e.Payload.(engine.DaySummary); ok {
			c.mu.Lock()
			c.settled = append(c.settled, s)
			c.mu.Unlock()
			select {
			case c.wake <- struct{}{}:
			default:
			}
			return
		}
	}
	select {
	case c.updates <- e:
	default:
		n := c.dropped.Add(1)
		c.logger.Debug("status cache queue full, update dropped", "event", string(e.Type), "dropped", n)
	}
}

// Dropped reports how many status updates Observe discarded.
func (c *StatusCache) Dropped() int64 {
	return c.dropped.Load()
}

// Run writes queued updates until ctx is cancelled.
func (c *StatusCache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if err := c.flushSettled(ctx); err != nil {
				c.logger.Warn("status cache summary write failed", "error", err)
			}
		case e := <-c.updates:
			if err := c.refresh(ctx); err != nil {
				c.logger.Warn("status cache write failed", "event", string(e.Type), "error", err)
			}
		}
	}
}

// flushSettled writes every pending summary in settlement order, then the
// status. A summary that fails to write is put back for the next wake.
func (c *StatusCache) flushSettled(ctx context.Context) error {
	c.mu.Lock()
	pending := c.settled
	c.settled = nil
	c.mu.Unlock()

	for i, s := range pending {
		wctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.SetSummary(wctx, s)
		cancel()
		if err != nil {
			c.requeue(pending[i:])
			return fmt.Errorf("day %d: %w", s.Day, err)
		}
	}
	return c.refresh(ctx)
}

func (c *StatusCache) requeue(rest []engine.DaySummary) {
	c.mu.Lock()
	c.settled = append(append([]engine.DaySummary(nil), rest...), c.settled...)
	c.mu.Unlock()
}

func (c *StatusCache) refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.SetStatus(ctx, c.source.Status())
}

func (c *StatusCache) statusKey() string {
	return fmt.Sprintf("shift:%s:status", c.sessionID)
}

func (c *StatusCache) summaryKey() string {
	return fmt.Sprintf("shift:%s:summary", c.sessionID)
}

func (c *StatusCache) daysKey() string {
	return fmt.Sprintf("shift:%s:days", c.sessionID)
}
