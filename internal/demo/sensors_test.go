package demo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/conch/command"
)

type capture struct {
	mu   sync.Mutex
	msgs []command.Message
}

func (c *capture) publish(msg command.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *capture) messages() []command.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]command.Message(nil), c.msgs...)
}

func TestSensorTickPublishesBothTopics(t *testing.T) {
	var sink capture
	p := NewSensorPublisher(time.Second, sink.publish, testLogger())

	p.Tick()

	msgs := sink.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TopicTemperature, msgs[0].Metadata["topic"])
	assert.Equal(t, TopicHumidity, msgs[1].Metadata["topic"])

	for _, msg := range msgs {
		assert.Equal(t, "data", msg.Type)
		assert.Equal(t, "demo-sensor", msg.Source)
		assert.NotEmpty(t, msg.Metadata["id"])

		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, payload, "value")
		assert.Contains(t, payload, "display")
	}
}

func TestSensorValuesStayInBand(t *testing.T) {
	var sink capture
	p := NewSensorPublisher(time.Second, sink.publish, testLogger())

	for i := 0; i < 200; i++ {
		p.Tick()
	}

	for _, msg := range sink.messages() {
		value := msg.Payload.(map[string]any)["value"].(float64)
		switch msg.Metadata["topic"] {
		case TopicTemperature:
			assert.GreaterOrEqual(t, value, 15.0)
			assert.LessOrEqual(t, value, 30.0)
		case TopicHumidity:
			assert.GreaterOrEqual(t, value, 20.0)
			assert.LessOrEqual(t, value, 80.0)
		}
	}
}

func TestSensorLoopStops(t *testing.T) {
	var sink capture
	p := NewSensorPublisher(10*time.Millisecond, sink.publish, testLogger())

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(sink.messages()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	n := len(sink.messages())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(sink.messages()))

	// Stop is idempotent.
	p.Stop()
}
