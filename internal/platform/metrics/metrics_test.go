package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsShiftCounters(t *testing.T) {
	c := NewCollector()
	c.RecordFrame(2*time.Millisecond, 3)
	c.RecordFrame(time.Millisecond, 7)
	c.RecordFrame(time.Millisecond, 0)
	c.RecordJudgement(false)
	c.RecordJudgement(true)
	c.RecordDelivery(2)
	c.RecordDelivery(0)
	c.RecordSettlement()
	c.RecordEventWrite(time.Millisecond, nil)
	c.RecordEventWrite(time.Millisecond, errors.New("disk full"))

	assert.EqualValues(t, 3, c.FrameCount)
	assert.EqualValues(t, 10, c.SimTicks)
	assert.EqualValues(t, 7, c.CatchupMax)
	assert.EqualValues(t, 2*time.Millisecond, c.FrameLatencyMax)
	assert.EqualValues(t, 2, c.Judgements)
	assert.EqualValues(t, 1, c.WrongJudgements)
	assert.EqualValues(t, 2, c.Deliveries)
	assert.EqualValues(t, 1, c.Settlements)
	assert.EqualValues(t, 2, c.EventsWritten)
	assert.EqualValues(t, 1, c.EventWriteErrors)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordFrame(time.Millisecond, 1)
		c.RecordJudgement(true)
		c.RecordWSMessage(true)
		c.RecordEventWrite(0, nil)
	})
}

func TestHandlerServesJSON(t *testing.T) {
	c := NewCollector()
	c.RecordJudgement(true)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	shift := body["shift"].(map[string]any)
	assert.EqualValues(t, 1, shift["wrong_judgements"])
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector()
	c.RecordWSMessage(true)
	c.RecordWSMessage(false)
	c.RecordWSMessage(false)

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics?format=prometheus", nil))

	out := rec.Body.String()
	assert.Contains(t, out, `bugshift_ws_messages_total{direction="in"} 1`)
	assert.Contains(t, out, `bugshift_ws_messages_total{direction="out"} 2`)
	assert.Contains(t, out, "# TYPE bugshift_judgements_total counter")
}
