package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/wire"
)

// Unix is a StreamingTransport over a unix domain stream socket
// speaking the newline-delimited JSON protocol.
//
// Send serialises full request/response exchanges under one mutex;
// SendAsync and Receive take separate write and read locks so the
// streaming shell's two tasks can run concurrently. Send must not be
// used while a receive loop is draining the same connection.
type Unix struct {
	path           string
	dialTimeout    time.Duration
	requestTimeout time.Duration
	log            *logrus.Entry

	mu        sync.Mutex // connection state
	conn      net.Conn
	enc       *wire.Encoder
	dec       *wire.Decoder
	connected bool

	reqMu  sync.Mutex // serialises Send/Ping exchanges
	recvMu sync.Mutex // serialises Receive

	streaming atomic.Bool

	cbMu      sync.Mutex
	onMessage func(command.Message)
}

// UnixOption configures a Unix transport.
type UnixOption func(*Unix)

// WithDialTimeout sets the connect timeout.
func WithDialTimeout(d time.Duration) UnixOption {
	return func(u *Unix) { u.dialTimeout = d }
}

// WithRequestTimeout sets the per-request deadline used by Send and
// Ping.
func WithRequestTimeout(d time.Duration) UnixOption {
	return func(u *Unix) { u.requestTimeout = d }
}

// WithUnixLogger sets the diagnostic logger.
func WithUnixLogger(log *logrus.Logger) UnixOption {
	return func(u *Unix) { u.log = log.WithField("transport", "unix") }
}

// NewUnix returns a transport for the given socket path.
func NewUnix(path string, opts ...UnixOption) *Unix {
	u := &Unix{
		path:           path,
		dialTimeout:    5 * time.Second,
		requestTimeout: 30 * time.Second,
		log:            logrus.StandardLogger().WithField("transport", "unix"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Connect dials the socket and drains the server's welcome frame.
func (u *Unix) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: u.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", u.path)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.path, err)
	}

	u.conn = conn
	u.enc = wire.NewEncoder(conn)
	u.dec = wire.NewDecoder(conn)
	u.connected = true

	u.drainWelcomeLocked()
	return nil
}

// drainWelcomeLocked reads the optional welcome frame with a short
// deadline. A server that sends nothing just costs the deadline.
func (u *Unix) drainWelcomeLocked() {
	u.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	defer u.conn.SetReadDeadline(time.Time{})

	frame, err := u.dec.Next()
	if err != nil {
		return
	}
	if frame.Type == wire.TypeWelcome {
		u.log.WithField("welcome", frame.Fields["message"]).Debug("server welcome")
	}
}

// Disconnect closes the connection. Idempotent.
func (u *Unix) Disconnect() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.connected {
		return nil
	}
	u.connected = false
	u.streaming.Store(false)
	return u.conn.Close()
}

// IsConnected reports whether the socket is usable.
func (u *Unix) IsConnected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.connected
}

func (u *Unix) markDisconnected() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.connected {
		u.connected = false
		u.streaming.Store(false)
		u.conn.Close()
	}
}

// session grabs the current codec pair, or reports not connected.
func (u *Unix) session() (net.Conn, *wire.Encoder, *wire.Decoder, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn, u.enc, u.dec, u.connected
}

// Send writes one command and reads its response. I/O failures mark the
// transport disconnected and come back as a failed result.
func (u *Unix) Send(ctx context.Context, cmd command.ParsedCommand) command.Result {
	u.reqMu.Lock()
	defer u.reqMu.Unlock()

	conn, enc, dec, ok := u.session()
	if !ok {
		return command.Fail("not connected")
	}

	conn.SetWriteDeadline(deadline(ctx, u.requestTimeout))
	if err := enc.WriteCommand(cmd); err != nil {
		u.markDisconnected()
		return command.Failf("connection failed: %v", err)
	}

	conn.SetReadDeadline(deadline(ctx, u.requestTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		frame, err := dec.Next()
		if err != nil {
			var perr *wire.ProtocolError
			switch {
			case errors.As(err, &perr):
				return command.Failf("invalid JSON response: %v", perr)
			case isTimeout(err):
				return command.Fail("request timed out")
			default:
				u.markDisconnected()
				return command.Failf("connection failed: %v", err)
			}
		}
		switch frame.Type {
		case wire.TypeResponse:
			return frame.AsResult()
		case wire.TypeWelcome, wire.TypeMessage:
			// Late pushes interleaved with the response; skip.
			continue
		default:
			return command.Failf("unexpected %s frame in response", frame.Type)
		}
	}
}

// Ping round-trips a ping frame.
func (u *Unix) Ping(ctx context.Context) error {
	u.reqMu.Lock()
	defer u.reqMu.Unlock()

	conn, enc, dec, ok := u.session()
	if !ok {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(deadline(ctx, u.requestTimeout))
	if err := enc.WritePing(); err != nil {
		u.markDisconnected()
		return fmt.Errorf("ping: %w", err)
	}

	conn.SetReadDeadline(deadline(ctx, u.requestTimeout))
	defer conn.SetReadDeadline(time.Time{})

	frame, err := dec.Next()
	if err != nil {
		if !isTimeout(err) {
			u.markDisconnected()
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

// SendAsync writes a command without reading a response.
func (u *Unix) SendAsync(ctx context.Context, cmd command.ParsedCommand) error {
	conn, enc, _, ok := u.session()
	if !ok {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(deadline(ctx, u.requestTimeout))
	if err := enc.WriteCommand(cmd); err != nil {
		if isClosed(err) {
			u.markDisconnected()
		}
		return fmt.Errorf("send %q: %w", cmd.Command, err)
	}
	return nil
}

// Receive reads one frame off the stream. Responses are folded into
// messages; malformed lines become error-typed messages rather than
// killing the receive loop.
func (u *Unix) Receive(ctx context.Context, timeout time.Duration) (command.Message, error) {
	u.recvMu.Lock()
	defer u.recvMu.Unlock()

	conn, _, dec, ok := u.session()
	if !ok {
		return command.Message{}, ErrNotConnected
	}

	if timeout < 0 {
		conn.SetReadDeadline(time.Time{})
	} else {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}

	for {
		frame, err := dec.Next()
		if err != nil {
			var perr *wire.ProtocolError
			switch {
			case errors.As(err, &perr):
				return u.dispatch(command.ErrorMessage(perr)), nil
			case isTimeout(err):
				return command.Message{}, ErrReceiveTimeout
			default:
				u.markDisconnected()
				return command.Message{}, err
			}
		}

		switch frame.Type {
		case wire.TypeMessage:
			return u.dispatch(frame.AsMessage()), nil
		case wire.TypeResponse:
			return u.dispatch(responseMessage(frame.AsResult())), nil
		case wire.TypeWelcome:
			continue
		default:
			u.log.WithField("frame", frame.Type).Debug("ignoring unexpected frame")
		}
	}
}

func (u *Unix) dispatch(msg command.Message) command.Message {
	u.cbMu.Lock()
	fn := u.onMessage
	u.cbMu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return msg
}

// OnMessage registers the message callback.
func (u *Unix) OnMessage(fn func(command.Message)) {
	u.cbMu.Lock()
	u.onMessage = fn
	u.cbMu.Unlock()
}

// StartStreaming subscribes to all topics and marks the transport
// streaming.
func (u *Unix) StartStreaming(ctx context.Context) error {
	if err := u.Subscribe(ctx, "", ""); err != nil {
		return err
	}
	u.streaming.Store(true)
	return nil
}

// StopStreaming sends the unsubscribe frame and clears the mark.
func (u *Unix) StopStreaming() error {
	if !u.streaming.Swap(false) {
		return nil
	}
	conn, enc, _, ok := u.session()
	if !ok {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(u.requestTimeout))
	return enc.WriteUnsubscribe("")
}

// Subscribe sends a subscribe frame for one topic with an optional
// server-side rule. An empty topic subscribes to everything.
func (u *Unix) Subscribe(ctx context.Context, topic, rule string) error {
	conn, enc, _, ok := u.session()
	if !ok {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(deadline(ctx, u.requestTimeout))
	if err := enc.WriteSubscribe(topic, rule); err != nil {
		if isClosed(err) {
			u.markDisconnected()
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe sends an unsubscribe frame for one topic.
func (u *Unix) Unsubscribe(ctx context.Context, topic string) error {
	conn, enc, _, ok := u.session()
	if !ok {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(deadline(ctx, u.requestTimeout))
	if err := enc.WriteUnsubscribe(topic); err != nil {
		if isClosed(err) {
			u.markDisconnected()
		}
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// IsStreaming reports whether a subscribe is active.
func (u *Unix) IsStreaming() bool { return u.streaming.Load() }

// SupportsStreaming reports true.
func (u *Unix) SupportsStreaming() bool { return true }

// Endpoint returns the socket path.
func (u *Unix) Endpoint() string { return u.path }

// Info describes the transport.
func (u *Unix) Info() map[string]any {
	return map[string]any{
		"kind":      "unix",
		"endpoint":  u.path,
		"connected": u.IsConnected(),
		"streaming": u.IsStreaming(),
	}
}

// deadline resolves the effective deadline: the context's, when it is
// sooner than now+fallback.
func deadline(ctx context.Context, fallback time.Duration) time.Time {
	d := time.Now().Add(fallback)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
