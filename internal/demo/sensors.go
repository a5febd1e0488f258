package demo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
)

// Sensor topics the publisher emits on.
const (
	TopicTemperature = "sensor/temperature"
	TopicHumidity    = "sensor/humidity"
)

// PublishFunc delivers a message to subscribed clients.
type PublishFunc func(command.Message)

// SensorPublisher emits synthetic temperature and humidity readings on
// a fixed interval. Values random-walk inside a plausible band so
// streaming filters have something to bite on.
type SensorPublisher struct {
	interval time.Duration
	publish  PublishFunc
	log      *logrus.Entry

	mu          sync.Mutex
	temperature float64
	humidity    float64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSensorPublisher builds a publisher. A zero interval falls back to
// two seconds.
func NewSensorPublisher(interval time.Duration, publish PublishFunc, logger *logrus.Logger) *SensorPublisher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SensorPublisher{
		interval:    interval,
		publish:     publish,
		log:         logger.WithField("component", "demo.sensors"),
		temperature: 21.0,
		humidity:    45.0,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the publishing loop. It returns immediately; the loop
// runs until Stop or context cancellation.
func (p *SensorPublisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.log.WithField("interval", p.interval).Info("sensor publisher started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (p *SensorPublisher) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Tick publishes one reading per topic. Exposed so tests can drive the
// publisher without waiting on the ticker.
func (p *SensorPublisher) Tick() {
	p.mu.Lock()
	p.temperature = drift(p.temperature, 0.4, 15.0, 30.0)
	p.humidity = drift(p.humidity, 1.5, 20.0, 80.0)
	temp, hum := p.temperature, p.humidity
	p.mu.Unlock()

	p.publish(reading(TopicTemperature, temp, "%.1f°C"))
	p.publish(reading(TopicHumidity, hum, "%.0f%%"))
}

// drift moves v by a random step of at most span, clamped to [lo, hi].
func drift(v, span, lo, hi float64) float64 {
	v += (rand.Float64()*2 - 1) * span
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// reading builds the data message for one sample.
func reading(topic string, value float64, unitFormat string) command.Message {
	msg := command.DataMessage(map[string]any{
		"value":   value,
		"display": fmt.Sprintf(unitFormat, value),
	}, "demo-sensor")
	msg.Metadata = map[string]any{
		"topic": topic,
		"id":    uuid.Must(uuid.NewV4()).String(),
	}
	return msg
}
