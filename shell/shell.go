// Package shell implements the interactive command shell: the
// request/response REPL, its streaming variant, and the client-side
// state they own — history, aliases, session values, and multi-line
// input assembly. Commands the shell does not handle locally go to a
// transport; nothing a transport does can terminate the loop.
package shell

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/format"
	"github.com/standardbeagle/conch/transport"
)

// ContinuationPrompt is shown while a multi-line command is open.
const ContinuationPrompt = "...> "

// Options configures a Shell. The zero value is usable: stdin/stdout,
// default prompt, no persistence.
type Options struct {
	// Prompt overrides the session's prompt value.
	Prompt string

	// HistoryFile and HistorySize configure command history
	// persistence. An empty file disables it.
	HistoryFile string
	HistorySize int

	// SessionFile is the JSON session state path. Empty disables
	// persistence.
	SessionFile string

	// Aliases preloads the alias table.
	Aliases map[string]string

	// Input and Output default to os.Stdin and os.Stdout.
	Input  io.Reader
	Output io.Writer

	// Logger receives diagnostics; user-facing text goes to Output.
	Logger *logrus.Logger
}

// Shell is the synchronous request/response REPL. It owns the
// transport, history, aliases, session state, and formatters; every
// error is recovered at the loop so only stdin EOF, exit/quit, or a
// cancelled context end a run.
type Shell struct {
	transport transport.Transport
	aliases   *Aliases
	history   *History
	session   *Session
	ml        MultiLine

	prompt string

	in  *bufio.Scanner
	out *Output
	log *logrus.Entry

	running  atomic.Bool
	exitCode atomic.Int32

	// dispatch sends a non-builtin command; the streaming shell swaps
	// in its async path. extra intercepts builtins the streaming shell
	// adds on top of the base set.
	dispatch func(ctx context.Context, cmd command.ParsedCommand)
	extra    func(ctx context.Context, cmd command.ParsedCommand) bool

	shutdownOnce sync.Once
}

// New builds a shell over the given transport.
func New(t transport.Transport, opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	in := opts.Input
	if in == nil {
		in = os.Stdin
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	session := NewSession(opts.SessionFile)
	session.Set("server_url", t.Endpoint())

	prompt := opts.Prompt
	if prompt == "" {
		prompt = session.Prompt()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	s := &Shell{
		transport: t,
		aliases:   NewAliases(opts.Aliases),
		history:   NewHistory(opts.HistoryFile, opts.HistorySize),
		session:   session,
		prompt:    prompt,
		in:        scanner,
		out:       NewOutput(out),
		log:       logger.WithField("component", "shell"),
	}
	s.dispatch = s.sendSync

	if err := s.history.Load(); err != nil {
		s.log.WithError(err).Warn("could not load history")
	}
	return s
}

// Run drives the REPL until stdin ends, exit/quit is issued, or the
// context is cancelled. The shutdown sequence always runs.
func (s *Shell) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.Shutdown()

	for s.running.Load() && ctx.Err() == nil {
		if s.ml.Active() {
			s.out.Print(ContinuationPrompt)
		} else {
			s.out.Print(s.prompt)
		}

		if !s.in.Scan() {
			break // EOF or read error; exit through shutdown
		}
		s.Execute(ctx, s.in.Text())
	}
	return nil
}

// Execute feeds one input line through the full pipeline: multi-line
// assembly, history, alias expansion, parsing, builtin or transport
// dispatch, rendering. It is the entry point tests and one-shot mode
// use.
func (s *Shell) Execute(ctx context.Context, line string) {
	joined, raw, complete := s.ml.Feed(line)
	if !complete {
		return
	}

	s.history.Add(joined)

	expanded := s.aliases.Expand(joined)
	cmd := command.Parse(expanded)
	if strings.Contains(raw, "\n") {
		cmd.Raw = raw
	}
	if cmd.Empty() {
		return
	}

	s.session.RecordCommand()

	if s.extra != nil && s.extra(ctx, cmd) {
		return
	}
	if s.runBuiltin(ctx, cmd) {
		return
	}
	s.dispatch(ctx, cmd)
}

// sendSync is the request/response dispatch path. Transport panics are
// contained here; a transport error never unwinds the loop.
func (s *Shell) sendSync(ctx context.Context, cmd command.ParsedCommand) {
	if !s.transport.IsConnected() {
		s.out.Println("Not connected")
		s.exitCode.Store(1)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			s.out.Printf("Error: %v\n", p)
			s.exitCode.Store(1)
		}
	}()

	res := s.transport.Send(ctx, cmd)
	s.renderResult(cmd, res)
	if res.Failed() {
		s.exitCode.Store(1)
	} else {
		s.exitCode.Store(0)
	}
}

// renderResult writes a command result using the format chosen by
// precedence: explicit --format, the \G terminator, then the session
// default.
func (s *Shell) renderResult(cmd command.ParsedCommand, res command.Result) {
	name := cmd.Option("format")
	if !format.Valid(name) {
		name = ""
	}
	if name == "" {
		if cmd.HasVerticalTerminator {
			name = format.Vertical
		} else {
			name = s.session.DefaultFormat()
		}
	}
	s.out.Print(format.Render(res, name))
}

// Stop asks the loop to exit at its next checkpoint.
func (s *Shell) Stop() {
	s.running.Store(false)
}

// Running reports whether the loop is active.
func (s *Shell) Running() bool {
	return s.running.Load()
}

// ExitCode returns the process exit code the last command produced.
func (s *Shell) ExitCode() int {
	return int(s.exitCode.Load())
}

// Aliases exposes the alias table.
func (s *Shell) Aliases() *Aliases { return s.aliases }

// History exposes the command history.
func (s *Shell) History() *History { return s.history }

// Session exposes the session state.
func (s *Shell) Session() *Session { return s.session }

// Shutdown runs the teardown sequence once: stop streaming, disconnect
// the transport, save session, save history. Every step is
// best-effort; a failure is reported and the sequence continues.
func (s *Shell) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.running.Store(false)

		if st, ok := s.transport.(transport.StreamingTransport); ok && st.IsStreaming() {
			if err := st.StopStreaming(); err != nil {
				s.log.WithError(err).Warn("stop streaming")
			}
		}
		if err := s.transport.Disconnect(); err != nil {
			s.log.WithError(err).Warn("disconnect")
		}
		if err := s.session.Save(); err != nil {
			s.out.Printf("Warning: could not save session: %v\n", err)
		}
		if err := s.history.Save(); err != nil {
			s.out.Printf("Warning: could not save history: %v\n", err)
		}
	})
}
