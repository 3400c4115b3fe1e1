// Package metrics provides observability for the shift server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers engine, journal and transport counters. Construct one
// with NewCollector and pass it to the components that record into it.
type Collector struct {
	// Frame metrics
	FrameCount      int64
	FrameLatencySum int64 // nanoseconds
	FrameLatencyMax int64
	LastFrameTime   time.Time

	// Simulation metrics
	SimTicks        int64
	CatchupMax      int64 // most ticks processed in one frame
	Judgements      int64
	WrongJudgements int64
	Deliveries      int64
	Settlements     int64
	CommandErrors   int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64
	WSRateLimited       int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// NewCollector returns an empty collector whose uptime starts now.
func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordFrame records one engine frame and the ticks it processed.
func (c *Collector) RecordFrame(latency time.Duration, ticks int) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.FrameCount, 1)
	atomic.AddInt64(&c.FrameLatencySum, int64(latency))
	storeMax(&c.FrameLatencyMax, int64(latency))
	if ticks > 0 {
		atomic.AddInt64(&c.SimTicks, int64(ticks))
		storeMax(&c.CatchupMax, int64(ticks))
	}

	c.mu.Lock()
	c.LastFrameTime = time.Now()
	c.mu.Unlock()
}

// RecordJudgement counts one resolved work item.
func (c *Collector) RecordJudgement(wrong bool) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.Judgements, 1)
	if wrong {
		atomic.AddInt64(&c.WrongJudgements, 1)
	}
}

// RecordDelivery counts fired deferred deliveries.
func (c *Collector) RecordDelivery(n int) {
	if c == nil || n <= 0 {
		return
	}
	atomic.AddInt64(&c.Deliveries, int64(n))
}

// RecordSettlement counts one settled day.
func (c *Collector) RecordSettlement() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.Settlements, 1)
}

// RecordCommandError counts rejected operator commands.
func (c *Collector) RecordCommandError() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.CommandErrors, 1)
}

// RecordEventWrite records an event write to the journal.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if c == nil {
		return
	}
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordRateLimited counts commands dropped by a client's limiter.
func (c *Collector) RecordRateLimited() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.WSRateLimited, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastFrame := c.LastFrameTime
	c.mu.RUnlock()

	frames := atomic.LoadInt64(&c.FrameCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var frameAvg, eventAvg float64
	if frames > 0 {
		frameAvg = float64(atomic.LoadInt64(&c.FrameLatencySum)) / float64(frames) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"frame": map[string]interface{}{
			"count":          frames,
			"avg_latency_ms": frameAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.FrameLatencyMax)) / 1e6,
			"last_frame":     lastFrame.Format(time.RFC3339),
		},

		"shift": map[string]interface{}{
			"sim_ticks":        atomic.LoadInt64(&c.SimTicks),
			"catchup_max":      atomic.LoadInt64(&c.CatchupMax),
			"judgements":       atomic.LoadInt64(&c.Judgements),
			"wrong_judgements": atomic.LoadInt64(&c.WrongJudgements),
			"deliveries":       atomic.LoadInt64(&c.Deliveries),
			"settlements":      atomic.LoadInt64(&c.Settlements),
			"command_errors":   atomic.LoadInt64(&c.CommandErrors),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
			"rate_limited":       atomic.LoadInt64(&c.WSRateLimited),
		},
	}
}

// Handler returns an HTTP handler serving the snapshot as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}
		gauge := func(name, help string, v float64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			fmt.Fprintf(w, "%s %.2f\n\n", name, v)
		}

		counter("bugshift_frames_total", "Total engine frames", atomic.LoadInt64(&c.FrameCount))
		gauge("bugshift_frame_latency_max_ms", "Maximum frame latency", float64(atomic.LoadInt64(&c.FrameLatencyMax))/1e6)
		counter("bugshift_sim_ticks_total", "Simulated clock ticks processed", atomic.LoadInt64(&c.SimTicks))
		gauge("bugshift_catchup_max_ticks", "Most ticks processed in one frame", float64(atomic.LoadInt64(&c.CatchupMax)))
		counter("bugshift_judgements_total", "Work items judged", atomic.LoadInt64(&c.Judgements))
		counter("bugshift_wrong_judgements_total", "Work items judged wrongly", atomic.LoadInt64(&c.WrongJudgements))
		counter("bugshift_deliveries_total", "Deferred notifications delivered", atomic.LoadInt64(&c.Deliveries))
		counter("bugshift_settlements_total", "Days settled", atomic.LoadInt64(&c.Settlements))
		counter("bugshift_command_errors_total", "Rejected operator commands", atomic.LoadInt64(&c.CommandErrors))
		counter("bugshift_events_written_total", "Events written to the journal", atomic.LoadInt64(&c.EventsWritten))
		counter("bugshift_event_write_errors_total", "Journal write errors", atomic.LoadInt64(&c.EventWriteErrors))
		gauge("bugshift_ws_connections", "Active WebSocket connections", float64(atomic.LoadInt64(&c.WSConnectionsActive)))

		fmt.Fprintf(w, "# HELP bugshift_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE bugshift_ws_messages_total counter\n")
		fmt.Fprintf(w, "bugshift_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "bugshift_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		counter("bugshift_ws_rate_limited_total", "Commands dropped by rate limiting", atomic.LoadInt64(&c.WSRateLimited))
	}
}
