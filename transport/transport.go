// Package transport abstracts how the shell reaches a command server:
// request/response over a unix socket or HTTP, full streaming over a
// unix socket or WebSocket, or an in-memory dispatch straight into a
// command registry. Send never returns a Go error; transport failures
// become failed CommandResults so a bad connection cannot kill the
// REPL loop.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/standardbeagle/conch/command"
)

var (
	// ErrNotConnected is returned when trying to use a transport before
	// Connect or after Disconnect.
	ErrNotConnected = errors.New("transport not connected")

	// ErrReceiveTimeout is returned by Receive when no message arrived
	// within the given timeout. It is a loop-again signal, not a fault.
	ErrReceiveTimeout = errors.New("receive timed out")

	// ErrStreamingUnsupported is returned by streaming operations on a
	// request/response-only transport.
	ErrStreamingUnsupported = errors.New("transport does not support streaming")
)

// Transport is the request/response contract the shell depends on.
type Transport interface {
	// Connect establishes the connection and drains any welcome frame.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Idempotent, never fails
	// meaningfully; errors are reported for logging only.
	Disconnect() error

	// IsConnected reports whether the transport is usable.
	IsConnected() bool

	// Send writes one command and reads one response. Transport
	// failures are converted into a failed result, never an error.
	Send(ctx context.Context, cmd command.ParsedCommand) command.Result

	// Ping checks liveness. Any failure means "not alive".
	Ping(ctx context.Context) error

	// Info describes the transport for the status builtin.
	Info() map[string]any

	// Endpoint returns the address this transport talks to.
	Endpoint() string
}

// StreamingTransport extends Transport with server push.
type StreamingTransport interface {
	Transport

	// SendAsync writes a command without consuming a response. Unlike
	// Send it reports write failures as errors; the response, if any,
	// arrives later through Receive.
	SendAsync(ctx context.Context, cmd command.ParsedCommand) error

	// Receive reads one pushed message. A negative timeout blocks
	// until a message arrives or the connection drops. On timeout it
	// returns ErrReceiveTimeout.
	Receive(ctx context.Context, timeout time.Duration) (command.Message, error)

	// OnMessage registers a single callback invoked for every message
	// returned by Receive. Replaces any previous callback.
	OnMessage(fn func(command.Message))

	// StartStreaming sends the subscribe frame and marks the transport
	// streaming. StopStreaming sends unsubscribe and clears the mark.
	StartStreaming(ctx context.Context) error
	StopStreaming() error
	IsStreaming() bool

	// SupportsStreaming reports true.
	SupportsStreaming() bool
}

// responseMessage converts a response frame read off the streaming path
// into a message. Responses to async commands arrive through the same
// stream as pushed messages; consumers correlate by payload content.
func responseMessage(res command.Result) command.Message {
	if !res.Success {
		msg := command.NewMessage("error", res.Error, "server")
		msg.Metadata = res.Metadata
		return msg
	}
	payload := res.Data
	if payload == nil && res.Message != "" {
		payload = res.Message
	}
	msg := command.NewMessage("response", payload, "server")
	msg.Metadata = res.Metadata
	return msg
}
