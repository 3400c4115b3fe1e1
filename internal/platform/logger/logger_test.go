package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEventCarriesComponentAndActor(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Format: "json", Output: &buf}).With("ledger")

	log.Event("DAY_SETTLED", "SYSTEM", "Day 2 settled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "DAY_SETTLED", line["event"])
	assert.Equal(t, "SYSTEM", line["actor"])
	assert.Equal(t, "Day 2 settled", line["msg"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "warn", Output: &buf})

	log.Debug("hidden")
	log.Info("hidden too")
	assert.Zero(t, buf.Len())

	log.Warnf("queue empty for day %d", 3)
	assert.Contains(t, buf.String(), "queue empty for day 3")
}
