package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/filter"
	"github.com/standardbeagle/conch/transport"
)

// receivePollInterval is how often the receive task wakes to re-check
// the running flag when no messages arrive.
const receivePollInterval = time.Second

// messageFilter is what the receive task consults before printing a
// message: either a glob filter or a WHERE expression. The active
// filter is swapped whole, never mutated in place.
type messageFilter interface {
	Matches(command.Message) bool
	String() string
}

// topicSubscriber is the optional transport surface for per-topic
// subscriptions with a server-side rule.
type topicSubscriber interface {
	Subscribe(ctx context.Context, topic, rule string) error
	Unsubscribe(ctx context.Context, topic string) error
}

// StreamingShell overlays the REPL with an asynchronous receive task.
// User commands go out via SendAsync and are acknowledged inline;
// their responses come back through the same stream as server-pushed
// messages. A pause gate drops messages on arrival, and a client-side
// filter decides what reaches the terminal.
type StreamingShell struct {
	*Shell

	stream transport.StreamingTransport

	paused   atomic.Bool
	msgCount atomic.Int64
	started  time.Time

	filterMu  sync.RWMutex
	msgFilter messageFilter

	receiveDone chan struct{}
}

// NewStreaming builds a streaming shell over the given transport.
func NewStreaming(st transport.StreamingTransport, opts Options) *StreamingShell {
	s := &StreamingShell{
		Shell:       New(st, opts),
		stream:      st,
		started:     time.Now(),
		receiveDone: make(chan struct{}),
	}
	s.Shell.dispatch = s.sendAsync
	s.Shell.extra = s.streamBuiltin
	return s
}

// Run starts streaming, launches the receive task, and drives the
// input loop. It returns once both tasks have stopped.
func (s *StreamingShell) Run(ctx context.Context) error {
	if s.stream.IsConnected() && !s.stream.IsStreaming() {
		if err := s.stream.StartStreaming(ctx); err != nil {
			s.log.WithError(err).Warn("could not start streaming")
		}
	}

	s.running.Store(true)
	go s.receiveLoop(ctx)

	err := s.Shell.Run(ctx)

	select {
	case <-s.receiveDone:
	case <-time.After(2 * receivePollInterval):
		s.log.Warn("receive task did not stop in time")
	}
	return err
}

// receiveLoop is the receive task: it drains the transport until the
// running flag clears or the connection drops. A receive timeout is
// only a checkpoint to re-read the flag.
func (s *StreamingShell) receiveLoop(ctx context.Context) {
	defer close(s.receiveDone)

	for s.running.Load() {
		msg, err := s.stream.Receive(ctx, receivePollInterval)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrReceiveTimeout):
				continue
			case ctx.Err() != nil:
				return
			case errors.Is(err, transport.ErrNotConnected):
				return
			default:
				// Disconnection: exit cleanly, the input task keeps
				// serving builtins.
				s.log.WithError(err).Debug("receive loop ending")
				return
			}
		}

		if s.paused.Load() {
			continue
		}
		s.msgCount.Add(1)

		if f := s.currentFilter(); f != nil && !f.Matches(msg) {
			continue
		}
		s.out.Println(renderMessage(msg))
	}
}

// sendAsync is the streaming dispatch path: write-only, acknowledged
// inline. The response arrives later through the receive task.
func (s *StreamingShell) sendAsync(ctx context.Context, cmd command.ParsedCommand) {
	if !s.stream.IsConnected() {
		s.out.Println("Not connected")
		s.exitCode.Store(1)
		return
	}
	if err := s.stream.SendAsync(ctx, cmd); err != nil {
		s.out.Printf("Error: %v\n", err)
		s.exitCode.Store(1)
		return
	}
	s.out.Printf("Command sent: %s\n", cmd.Command)
	s.exitCode.Store(0)
}

// streamBuiltin handles the commands the streaming mode adds. Names
// match case-insensitively, like the base builtins.
func (s *StreamingShell) streamBuiltin(ctx context.Context, cmd command.ParsedCommand) bool {
	switch strings.ToLower(cmd.Command) {
	case "pause":
		s.paused.Store(true)
		s.out.Println("Streaming paused")
	case "resume":
		s.paused.Store(false)
		s.out.Println("Streaming resumed")
	case "stats":
		s.builtinStats()
	case "filter":
		s.builtinFilter(cmd)
	case "subscribe":
		s.builtinSubscribe(ctx, cmd, true)
	case "unsubscribe":
		s.builtinSubscribe(ctx, cmd, false)
	default:
		return false
	}
	return true
}

func (s *StreamingShell) builtinStats() {
	filterText := "(none)"
	if f := s.currentFilter(); f != nil {
		filterText = f.String()
	}
	s.out.Printf("Messages received: %d\n", s.msgCount.Load())
	s.out.Printf("Filter:            %s\n", filterText)
	s.out.Printf("Paused:            %t\n", s.paused.Load())
	s.out.Printf("Connected:         %t\n", s.stream.IsConnected())
	s.out.Printf("Uptime:            %s\n", time.Since(s.started).Round(time.Second))
}

// builtinFilter manages the client-side message filter. `filter show`
// prints it, `filter off|clear|none` removes it, field:glob pairs
// install a glob filter, and any other tail is compiled as a WHERE
// expression.
func (s *StreamingShell) builtinFilter(cmd command.ParsedCommand) {
	args := cmd.Arguments

	if len(args) == 0 || (len(args) == 1 && strings.EqualFold(args[0], "show")) {
		if f := s.currentFilter(); f != nil {
			s.out.Println(f.String())
		} else {
			s.out.Println("No filter set")
		}
		return
	}

	if len(args) == 1 {
		switch strings.ToLower(args[0]) {
		case "off", "clear", "none":
			s.setFilter(nil)
			s.out.Println("Filter cleared")
			return
		}
	}

	if globArgs(args) {
		f, err := filter.ParseGlobFilter(args)
		if err != nil {
			s.out.Printf("Error: %v\n", err)
			return
		}
		s.setFilter(f)
		s.out.Printf("Filter set: %s\n", f)
		return
	}

	// WHERE expression over the message context. The keyword itself is
	// optional: `filter where x > 1` and `filter x > 1` are the same.
	text := filterTail(cmd.Raw)
	if head, rest, found := strings.Cut(text, " "); found && strings.EqualFold(head, "where") {
		text = strings.TrimSpace(rest)
	}
	expr := filter.NewExpression()
	if err := expr.Add(filter.CombinerBase, text); err != nil {
		s.out.Printf("Error: %v\n", err)
		return
	}
	s.setFilter(expr)
	s.out.Printf("Filter set: %s\n", text)
}

// globArgs reports whether every argument looks like a field:glob
// pair rather than expression syntax.
func globArgs(args []string) bool {
	for _, arg := range args {
		field, _, found := strings.Cut(arg, ":")
		if !found || strings.ContainsAny(field, " =<>!(") {
			return false
		}
	}
	return true
}

// filterTail strips the leading "filter" token from the raw line so
// quoted strings inside the expression survive untouched.
func filterTail(raw string) string {
	tail := strings.TrimSpace(raw)
	if i := strings.IndexAny(tail, " \t"); i >= 0 {
		return strings.TrimSpace(tail[i:])
	}
	return ""
}

func (s *StreamingShell) builtinSubscribe(ctx context.Context, cmd command.ParsedCommand, subscribe bool) {
	topic := ""
	if len(cmd.Arguments) > 0 {
		topic = cmd.Arguments[0]
	}
	rule := cmd.Option("rule")

	if ts, ok := s.stream.(topicSubscriber); ok {
		var err error
		if subscribe {
			err = ts.Subscribe(ctx, topic, rule)
		} else {
			err = ts.Unsubscribe(ctx, topic)
		}
		if err != nil {
			s.out.Printf("Error: %v\n", err)
			return
		}
		s.out.Printf("Command sent: %s\n", cmd.Command)
		return
	}

	// No frame-level subscription surface; forward as a command.
	s.sendAsync(ctx, cmd)
}

func (s *StreamingShell) currentFilter() messageFilter {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.msgFilter
}

func (s *StreamingShell) setFilter(f messageFilter) {
	s.filterMu.Lock()
	s.msgFilter = f
	s.filterMu.Unlock()
}

// Paused reports the pause gate state.
func (s *StreamingShell) Paused() bool { return s.paused.Load() }

// MessageCount returns how many messages passed the pause gate.
func (s *StreamingShell) MessageCount() int64 { return s.msgCount.Load() }

// renderMessage formats one pushed message as a single output line:
// [type] source: payload.
func renderMessage(msg command.Message) string {
	return fmt.Sprintf("[%s] %s: %s", msg.Type, msg.Source, payloadText(msg.Payload))
}

func payloadText(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(data)
	}
}
