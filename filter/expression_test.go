package filter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/conch/command"
)

func dataMsg(topic string, payload map[string]any) command.Message {
	msg := command.DataMessage(payload, "test")
	msg.Metadata = map[string]any{"topic": topic}
	return msg
}

func TestExpressionEmptyMatchesAll(t *testing.T) {
	e := NewExpression()
	assert.True(t, e.Matches(dataMsg("any", nil)))
	assert.Equal(t, 0, e.Len())
}

func TestExpressionCombiners(t *testing.T) {
	e := NewExpression()
	require.NoError(t, e.Add(CombinerBase, "type = 'data'"))
	require.NoError(t, e.Add(CombinerAnd, "qos >= 1"))
	require.NoError(t, e.Add(CombinerOr, "priority = 'high'"))
	require.NoError(t, e.Add(CombinerAndNot, "muted = true"))

	// ((type='data' AND qos>=1) OR priority='high') AND NOT muted=true
	match := command.DataMessage(nil, "s")
	match.Metadata = map[string]any{"qos": float64(1)}
	assert.True(t, e.Matches(match))

	viaOr := command.SystemMessage("alert")
	viaOr.Metadata = map[string]any{"priority": "high"}
	assert.True(t, e.Matches(viaOr))

	muted := command.DataMessage(nil, "s")
	muted.Metadata = map[string]any{"qos": float64(2), "muted": true}
	assert.False(t, e.Matches(muted))

	neither := command.SystemMessage("quiet")
	assert.False(t, e.Matches(neither))
}

func TestExpressionFirstClauseIsBase(t *testing.T) {
	e := NewExpression()
	require.NoError(t, e.Add(CombinerOr, "a = 1"))

	clauses := e.Clauses()
	require.Len(t, clauses, 1)
	assert.Equal(t, CombinerBase, clauses[0].Combiner)
}

func TestExpressionAddErrors(t *testing.T) {
	e := NewExpression()
	assert.Error(t, e.Add(CombinerBase, "not a valid ((( filter"))
	assert.Error(t, e.Add(Combiner("XOR"), "a = 1"))
	assert.Equal(t, 0, e.Len())
}

func TestExpressionRemovePromotesBase(t *testing.T) {
	e := NewExpression()
	require.NoError(t, e.Add(CombinerBase, "a = 1"))
	require.NoError(t, e.Add(CombinerOr, "b = 2"))
	require.NoError(t, e.Add(CombinerAnd, "c = 3"))

	require.NoError(t, e.Remove(0))

	clauses := e.Clauses()
	require.Len(t, clauses, 2)
	assert.Equal(t, CombinerBase, clauses[0].Combiner)
	assert.Equal(t, "b = 2", clauses[0].Text)

	// b=2 AND c=3 now.
	both := command.DataMessage(nil, "s")
	both.Metadata = map[string]any{"b": float64(2), "c": float64(3)}
	assert.True(t, e.Matches(both))

	only := command.DataMessage(nil, "s")
	only.Metadata = map[string]any{"b": float64(2)}
	assert.False(t, e.Matches(only))

	assert.Error(t, e.Remove(5))
	assert.Error(t, e.Remove(-1))
}

func TestExpressionClear(t *testing.T) {
	e := NewExpression()
	require.NoError(t, e.Add(CombinerBase, "a = 1"))
	e.Clear()
	assert.Equal(t, 0, e.Len())
	assert.True(t, e.Matches(command.SystemMessage("anything")))
}

func TestExpressionConcurrentUse(t *testing.T) {
	e := NewExpression()
	require.NoError(t, e.Add(CombinerBase, "type = 'data'"))

	var wg sync.WaitGroup
	stop := time.After(50 * time.Millisecond)

	wg.Add(2)
	go func() {
		defer wg.Done()
		msg := command.DataMessage(nil, "s")
		for {
			select {
			case <-stop:
				return
			default:
				_ = e.Matches(msg)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = e.Add(CombinerOr, "qos = 1")
			_ = e.Remove(1)
		}
	}()
	wg.Wait()

	assert.Equal(t, 1, e.Len())
}

func TestExpressionString(t *testing.T) {
	e := NewExpression()
	assert.Equal(t, "(no filter)", e.String())

	require.NoError(t, e.Add(CombinerBase, "type = 'data'"))
	require.NoError(t, e.Add(CombinerAndNot, "muted = true"))

	s := e.String()
	assert.Contains(t, s, "0: [BASE] type = 'data'")
	assert.Contains(t, s, "1: [AND NOT] muted = true")
}

func TestMessageContext(t *testing.T) {
	msg := command.DataMessage(map[string]any{"temp": 21.5}, "sensor-1")
	msg.Metadata = map[string]any{"topic": "sensor/temperature", "qos": float64(1)}

	record := MessageContext(msg)
	assert.Equal(t, "data", record["type"])
	assert.Equal(t, "sensor-1", record["source"])
	assert.Equal(t, "sensor/temperature", record["topic"])
	assert.Equal(t, float64(1), record["qos"])
	assert.Equal(t, 21.5, record["temp"], "map payload fields flatten in")
	assert.Equal(t, float64(msg.Timestamp.Unix()), record["timestamp"])
}

func TestMessageContextCoreFieldsWin(t *testing.T) {
	msg := command.DataMessage(map[string]any{"type": "spoofed"}, "sensor-1")
	msg.Metadata = map[string]any{"source": "spoofed-too"}

	record := MessageContext(msg)
	assert.Equal(t, "data", record["type"])
	assert.Equal(t, "sensor-1", record["source"])
}

func TestMessageTopic(t *testing.T) {
	msg := command.DataMessage(nil, "s")
	assert.Equal(t, "", MessageTopic(msg))

	msg.Metadata = map[string]any{"channel": "updates"}
	assert.Equal(t, "updates", MessageTopic(msg))

	msg.Metadata["topic"] = "sensor/temperature"
	assert.Equal(t, "sensor/temperature", MessageTopic(msg))
}
