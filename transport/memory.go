package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/conch/command"
)

// Memory is a StreamingTransport that dispatches straight into a local
// command registry, no I/O involved. It defines the transport
// semantics for tests and lets consumers embed a server in-process.
//
// Pushed messages come from Publish, which feeds the same channel
// Receive drains; async command responses are folded into that stream
// the way a socket transport would deliver them.
type Memory struct {
	registry *command.Registry

	mu        sync.Mutex
	connected bool

	streaming atomic.Bool
	msgs      chan command.Message
	dropped   atomic.Int64

	cbMu      sync.Mutex
	onMessage func(command.Message)
}

// NewMemory returns a transport dispatching into the given registry.
func NewMemory(registry *command.Registry) *Memory {
	return &Memory{
		registry: registry,
		msgs:     make(chan command.Message, 64),
	}
}

// Connect marks the transport connected.
func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Disconnect marks the transport disconnected. Idempotent.
func (m *Memory) Disconnect() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.streaming.Store(false)
	return nil
}

// IsConnected reports whether Connect has been called.
func (m *Memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Send executes the command synchronously against the registry.
func (m *Memory) Send(ctx context.Context, cmd command.ParsedCommand) command.Result {
	if !m.IsConnected() {
		return command.Fail("not connected")
	}
	return m.registry.Execute(ctx, cmd)
}

// SendAsync executes the command and folds its result into the message
// stream, mimicking a server that answers async commands over the
// broadcast channel.
func (m *Memory) SendAsync(ctx context.Context, cmd command.ParsedCommand) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	res := m.registry.Execute(ctx, cmd)
	m.Publish(responseMessage(res))
	return nil
}

// Publish injects a message into the receive stream. When the buffer
// is full the message is dropped, matching the reference server's
// slow-consumer policy.
func (m *Memory) Publish(msg command.Message) {
	select {
	case m.msgs <- msg:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns how many published messages were discarded because
// the receive buffer was full.
func (m *Memory) Dropped() int64 { return m.dropped.Load() }

// Receive returns the next published message, or ErrReceiveTimeout.
func (m *Memory) Receive(ctx context.Context, timeout time.Duration) (command.Message, error) {
	if !m.IsConnected() {
		return command.Message{}, ErrNotConnected
	}

	if timeout < 0 {
		select {
		case msg := <-m.msgs:
			return m.dispatch(msg), nil
		case <-ctx.Done():
			return command.Message{}, ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-m.msgs:
		return m.dispatch(msg), nil
	case <-timer.C:
		return command.Message{}, ErrReceiveTimeout
	case <-ctx.Done():
		return command.Message{}, ctx.Err()
	}
}

func (m *Memory) dispatch(msg command.Message) command.Message {
	m.cbMu.Lock()
	fn := m.onMessage
	m.cbMu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return msg
}

// OnMessage registers the message callback.
func (m *Memory) OnMessage(fn func(command.Message)) {
	m.cbMu.Lock()
	m.onMessage = fn
	m.cbMu.Unlock()
}

// Ping succeeds while connected.
func (m *Memory) Ping(ctx context.Context) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// StartStreaming marks the transport streaming.
func (m *Memory) StartStreaming(ctx context.Context) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}
	m.streaming.Store(true)
	return nil
}

// StopStreaming clears the streaming mark.
func (m *Memory) StopStreaming() error {
	m.streaming.Store(false)
	return nil
}

// IsStreaming reports whether StartStreaming was called.
func (m *Memory) IsStreaming() bool { return m.streaming.Load() }

// SupportsStreaming reports true.
func (m *Memory) SupportsStreaming() bool { return true }

// Endpoint returns a fixed in-memory marker.
func (m *Memory) Endpoint() string { return "memory://local" }

// Info describes the transport.
func (m *Memory) Info() map[string]any {
	return map[string]any{
		"kind":      "memory",
		"endpoint":  m.Endpoint(),
		"connected": m.IsConnected(),
		"streaming": m.IsStreaming(),
	}
}
