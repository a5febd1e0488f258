package command

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFactories(t *testing.T) {
	data := DataMessage(map[string]any{"temp": 21.5}, "sensor-1")
	assert.Equal(t, "data", data.Type)
	assert.Equal(t, "sensor-1", data.Source)
	assert.WithinDuration(t, time.Now(), data.Timestamp, time.Second)

	sys := SystemMessage("server restarting")
	assert.Equal(t, "system", sys.Type)
	assert.Equal(t, "server restarting", sys.Payload)
	assert.Equal(t, "system", sys.Source)

	errMsg := ErrorMessage(errors.New("disk full"))
	assert.Equal(t, "error", errMsg.Type)
	assert.Equal(t, "disk full", errMsg.Payload)

	nilErr := ErrorMessage(nil)
	assert.Equal(t, "unknown error", nilErr.Payload)
}

func TestMessageDefaults(t *testing.T) {
	msg := NewMessage("", nil, "")
	assert.Equal(t, "unknown", msg.Type)
	assert.Equal(t, "unknown", msg.Source)
}

func TestMessageFromMap(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	msg := MessageFromMap(map[string]any{
		"type":      "data",
		"payload":   "reading",
		"source":    "sensor-2",
		"timestamp": ts.Format(time.RFC3339),
		"metadata":  map[string]any{"topic": "sensor/temperature"},
	})

	assert.Equal(t, "data", msg.Type)
	assert.Equal(t, "reading", msg.Payload)
	assert.Equal(t, "sensor-2", msg.Source)
	assert.True(t, msg.Timestamp.Equal(ts))
	assert.Equal(t, "sensor/temperature", msg.Metadata["topic"])
}

func TestMessageFromMapPayloadFallsBackToData(t *testing.T) {
	msg := MessageFromMap(map[string]any{"data": 42.0})
	assert.Equal(t, 42.0, msg.Payload)
}

func TestMessageFromMapDefaults(t *testing.T) {
	msg := MessageFromMap(map[string]any{})
	assert.Equal(t, "unknown", msg.Type)
	assert.Equal(t, "unknown", msg.Source)
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}

func TestMessageFromMapBadTimestamp(t *testing.T) {
	msg := MessageFromMap(map[string]any{"timestamp": "not-a-time"})
	require.False(t, msg.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), msg.Timestamp, time.Second)
}

func TestMessageFromMapUnixTimestamp(t *testing.T) {
	msg := MessageFromMap(map[string]any{"timestamp": 1735689600.0})
	assert.Equal(t, int64(1735689600), msg.Timestamp.Unix())
}
