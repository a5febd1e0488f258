package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/wire"
)

// WS is a StreamingTransport over a WebSocket connection. Each text
// message carries one JSON frame, the same shapes as the socket
// protocol without the newline framing.
type WS struct {
	url            string
	dialer         *websocket.Dialer
	requestTimeout time.Duration
	log            *logrus.Entry

	mu        sync.Mutex // connection state
	conn      *websocket.Conn
	connected bool

	writeMu sync.Mutex // gorilla allows one concurrent writer
	readMu  sync.Mutex // and one concurrent reader
	reqMu   sync.Mutex // serialises Send/Ping exchanges

	streaming atomic.Bool

	cbMu      sync.Mutex
	onMessage func(command.Message)
}

// WSOption configures a WS transport.
type WSOption func(*WS)

// WithWSDialer replaces the websocket dialer.
func WithWSDialer(d *websocket.Dialer) WSOption {
	return func(t *WS) { t.dialer = d }
}

// WithWSRequestTimeout sets the per-request deadline.
func WithWSRequestTimeout(d time.Duration) WSOption {
	return func(t *WS) { t.requestTimeout = d }
}

// NewWS returns a transport for the given ws:// or wss:// URL.
func NewWS(url string, opts ...WSOption) *WS {
	t := &WS{
		url:            url,
		dialer:         websocket.DefaultDialer,
		requestTimeout: 30 * time.Second,
		log:            logrus.StandardLogger().WithField("transport", "ws"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials the WebSocket endpoint and drains the welcome frame.
func (t *WS) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.url, err)
	}
	t.conn = conn
	t.connected = true

	conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	if frame, err := t.readFrameLocked(conn); err == nil && frame.Type == wire.TypeWelcome {
		t.log.WithField("welcome", frame.Fields["message"]).Debug("server welcome")
	}
	conn.SetReadDeadline(time.Time{})
	return nil
}

// Disconnect closes the connection. Idempotent.
func (t *WS) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false
	t.streaming.Store(false)
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

// IsConnected reports whether the socket is usable.
func (t *WS) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *WS) markDisconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		t.connected = false
		t.streaming.Store(false)
		t.conn.Close()
	}
}

func (t *WS) session() (*websocket.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.connected
}

func (t *WS) writeJSON(ctx context.Context, v any) error {
	conn, ok := t.session()
	if !ok {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(deadline(ctx, t.requestTimeout))
	return conn.WriteJSON(v)
}

// readFrameLocked reads one frame; caller holds readMu (or the state
// lock during connect).
func (t *WS) readFrameLocked(conn *websocket.Conn) (wire.Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return wire.Frame{}, err
	}
	return wire.ParseFrame(data)
}

type wsCommandFrame struct {
	Type      string            `json:"type"`
	Command   string            `json:"command"`
	Arguments []string          `json:"arguments,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Raw       string            `json:"raw,omitempty"`
}

func commandEnvelope(cmd command.ParsedCommand) wsCommandFrame {
	return wsCommandFrame{wire.TypeCommand, cmd.Command, cmd.Arguments, cmd.Options, cmd.Raw}
}

// Send writes a command frame and reads frames until the response.
func (t *WS) Send(ctx context.Context, cmd command.ParsedCommand) command.Result {
	t.reqMu.Lock()
	defer t.reqMu.Unlock()

	if err := t.writeJSON(ctx, commandEnvelope(cmd)); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return command.Fail("not connected")
		}
		t.markDisconnected()
		return command.Failf("connection failed: %v", err)
	}

	conn, ok := t.session()
	if !ok {
		return command.Fail("not connected")
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()
	conn.SetReadDeadline(deadline(ctx, t.requestTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		frame, err := t.readFrameLocked(conn)
		if err != nil {
			var perr *wire.ProtocolError
			switch {
			case errors.As(err, &perr):
				return command.Failf("invalid JSON response: %v", perr)
			case isTimeout(err):
				return command.Fail("request timed out")
			default:
				t.markDisconnected()
				return command.Failf("connection failed: %v", err)
			}
		}
		switch frame.Type {
		case wire.TypeResponse:
			return frame.AsResult()
		case wire.TypeWelcome, wire.TypeMessage:
			continue
		default:
			return command.Failf("unexpected %s frame in response", frame.Type)
		}
	}
}

// Ping round-trips a ping frame.
func (t *WS) Ping(ctx context.Context) error {
	t.reqMu.Lock()
	defer t.reqMu.Unlock()

	if err := t.writeJSON(ctx, map[string]string{"type": wire.TypePing}); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	conn, ok := t.session()
	if !ok {
		return ErrNotConnected
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()
	conn.SetReadDeadline(deadline(ctx, t.requestTimeout))
	defer conn.SetReadDeadline(time.Time{})

	frame, err := t.readFrameLocked(conn)
	if err != nil {
		if !isTimeout(err) {
			t.markDisconnected()
		}
		return fmt.Errorf("ping: %w", err)
	}
	if frame.Type != wire.TypeResponse {
		return fmt.Errorf("ping: unexpected %s frame", frame.Type)
	}
	if res := frame.AsResult(); !res.Success {
		return fmt.Errorf("ping: %s", res.Error)
	}
	return nil
}

// SendAsync writes a command frame without reading a response.
func (t *WS) SendAsync(ctx context.Context, cmd command.ParsedCommand) error {
	if err := t.writeJSON(ctx, commandEnvelope(cmd)); err != nil {
		if !errors.Is(err, ErrNotConnected) {
			t.markDisconnected()
		}
		return fmt.Errorf("send %q: %w", cmd.Command, err)
	}
	return nil
}

// Receive reads one pushed message.
func (t *WS) Receive(ctx context.Context, timeout time.Duration) (command.Message, error) {
	conn, ok := t.session()
	if !ok {
		return command.Message{}, ErrNotConnected
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	if timeout < 0 {
		conn.SetReadDeadline(time.Time{})
	} else {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}

	for {
		frame, err := t.readFrameLocked(conn)
		if err != nil {
			var perr *wire.ProtocolError
			switch {
			case errors.As(err, &perr):
				return t.dispatch(command.ErrorMessage(perr)), nil
			case isTimeout(err):
				return command.Message{}, ErrReceiveTimeout
			default:
				t.markDisconnected()
				return command.Message{}, err
			}
		}

		switch frame.Type {
		case wire.TypeMessage:
			return t.dispatch(frame.AsMessage()), nil
		case wire.TypeResponse:
			return t.dispatch(responseMessage(frame.AsResult())), nil
		case wire.TypeWelcome:
			continue
		default:
			t.log.WithField("frame", frame.Type).Debug("ignoring unexpected frame")
		}
	}
}

func (t *WS) dispatch(msg command.Message) command.Message {
	t.cbMu.Lock()
	fn := t.onMessage
	t.cbMu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return msg
}

// OnMessage registers the message callback.
func (t *WS) OnMessage(fn func(command.Message)) {
	t.cbMu.Lock()
	t.onMessage = fn
	t.cbMu.Unlock()
}

// StartStreaming subscribes to all topics.
func (t *WS) StartStreaming(ctx context.Context) error {
	if err := t.Subscribe(ctx, "", ""); err != nil {
		return err
	}
	t.streaming.Store(true)
	return nil
}

// StopStreaming sends the unsubscribe frame and clears the mark.
func (t *WS) StopStreaming() error {
	if !t.streaming.Swap(false) {
		return nil
	}
	return t.writeJSON(context.Background(), map[string]string{"type": wire.TypeUnsubscribe})
}

// Subscribe sends a subscribe frame for one topic.
func (t *WS) Subscribe(ctx context.Context, topic, rule string) error {
	frame := map[string]string{"type": wire.TypeSubscribe, "topic": topic}
	if rule != "" {
		frame["rule"] = rule
	}
	return t.writeJSON(ctx, frame)
}

// Unsubscribe sends an unsubscribe frame for one topic.
func (t *WS) Unsubscribe(ctx context.Context, topic string) error {
	return t.writeJSON(ctx, map[string]string{"type": wire.TypeUnsubscribe, "topic": topic})
}

// IsStreaming reports whether a subscribe is active.
func (t *WS) IsStreaming() bool { return t.streaming.Load() }

// SupportsStreaming reports true.
func (t *WS) SupportsStreaming() bool { return true }

// Endpoint returns the WebSocket URL.
func (t *WS) Endpoint() string { return t.url }

// Info describes the transport.
func (t *WS) Info() map[string]any {
	return map[string]any{
		"kind":      "websocket",
		"endpoint":  t.url,
		"connected": t.IsConnected(),
		"streaming": t.IsStreaming(),
	}
}
