package shell

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/transport"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

// capturingShell wires a shell over the in-memory transport with a
// fallback handler that records every command reaching the server side.
func capturingShell(t *testing.T, opts Options) (*Shell, *bytes.Buffer, *[]command.ParsedCommand) {
	t.Helper()

	var captured []command.ParsedCommand
	registry := command.NewRegistry()
	registry.SetFallback(command.HandlerFunc(func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		captured = append(captured, cmd)
		return command.OKMsg("done")
	}))

	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	opts.Output = out
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(mem, opts), out, &captured
}

func TestExecuteAliasExpandsBeforeDispatch(t *testing.T) {
	s, _, captured := capturingShell(t, Options{
		Aliases: map[string]string{"ls": "SHOW TABLES"},
	})

	s.Execute(context.Background(), "ls")

	require.Len(t, *captured, 1)
	cmd := (*captured)[0]
	assert.Equal(t, "SHOW", cmd.Command)
	assert.Equal(t, []string{"TABLES"}, cmd.Arguments)
	assert.Equal(t, 0, s.ExitCode())
}

func TestExecuteVerticalTerminator(t *testing.T) {
	registry := command.NewRegistry()
	registry.RegisterFunc("select", "", func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		return command.OK([]any{map[string]any{"id": 1, "name": "Alice"}})
	})
	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{Output: out, Logger: quietLogger()})

	s.Execute(context.Background(), `select 1 \G`)

	assert.Contains(t, out.String(), "1. row")
	assert.Contains(t, out.String(), "name: Alice")
	assert.NotContains(t, out.String(), "+--")
}

func TestExecuteFormatOptionOverridesDefault(t *testing.T) {
	registry := command.NewRegistry()
	registry.RegisterFunc("select", "", func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		return command.OK(map[string]any{"id": 1})
	})
	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{Output: out, Logger: quietLogger()})

	s.Execute(context.Background(), "select 1 --format=json")
	assert.Contains(t, out.String(), `"id": 1`)

	// Unknown format names fall through to the session default.
	out.Reset()
	s.Execute(context.Background(), "select 1 --format=bogus")
	assert.Contains(t, out.String(), "| Key | Value |")
}

func TestExecuteMultiLineKeepsRawNewlines(t *testing.T) {
	s, _, captured := capturingShell(t, Options{})

	ctx := context.Background()
	s.Execute(ctx, `SELECT * \`)
	assert.Empty(t, *captured)

	s.Execute(ctx, "FROM users")

	require.Len(t, *captured, 1)
	cmd := (*captured)[0]
	assert.Equal(t, "SELECT", cmd.Command)
	assert.Equal(t, "SELECT *\nFROM users", cmd.Raw)
}

func TestExecuteDisconnectedTransport(t *testing.T) {
	mem := transport.NewMemory(command.NewRegistry())
	out := &bytes.Buffer{}
	s := New(mem, Options{Output: out, Logger: quietLogger()})

	s.Execute(context.Background(), "query users")

	assert.Contains(t, out.String(), "Not connected")
	assert.Equal(t, 1, s.ExitCode())
}

func TestExecuteFailedResultSetsExitCode(t *testing.T) {
	registry := command.NewRegistry()
	registry.RegisterFunc("boom", "", func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		return command.Fail("it broke")
	})
	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{Output: out, Logger: quietLogger()})

	s.Execute(context.Background(), "boom")

	assert.Contains(t, out.String(), "Error: it broke")
	assert.Equal(t, 1, s.ExitCode())
}

func TestExecuteRecordsHistoryAndSession(t *testing.T) {
	s, _, _ := capturingShell(t, Options{})

	ctx := context.Background()
	s.Execute(ctx, "query one")
	s.Execute(ctx, "query two")
	s.Execute(ctx, "")

	assert.Equal(t, []string{"query one", "query two"}, s.History().Entries())
	assert.Equal(t, int64(2), s.Session().Commands())
}

func TestBuiltinExit(t *testing.T) {
	s, out, captured := capturingShell(t, Options{})

	s.Execute(context.Background(), "exit")

	assert.Contains(t, out.String(), "Bye")
	assert.False(t, s.Running())
	assert.Empty(t, *captured, "exit must not reach the transport")
}

func TestBuiltinMatchingIsCaseInsensitive(t *testing.T) {
	s, out, captured := capturingShell(t, Options{})

	s.Execute(context.Background(), "EXIT")

	assert.Contains(t, out.String(), "Bye")
	assert.False(t, s.Running())
	assert.Empty(t, *captured, "EXIT must not reach the transport")
}

func TestBuiltinHelp(t *testing.T) {
	s, out, _ := capturingShell(t, Options{})

	s.Execute(context.Background(), "help")
	assert.Contains(t, out.String(), "Built-in commands:")
	assert.Contains(t, out.String(), "exit")

	out.Reset()
	s.Execute(context.Background(), "help alias")
	assert.Contains(t, out.String(), "alias [name='value']")
}

func TestBuiltinAliasDefineAndList(t *testing.T) {
	s, out, _ := capturingShell(t, Options{})
	ctx := context.Background()

	s.Execute(ctx, "alias ls='SHOW TABLES'")
	assert.Contains(t, out.String(), "alias ls='SHOW TABLES'")
	value, ok := s.Aliases().Get("ls")
	require.True(t, ok)
	assert.Equal(t, "SHOW TABLES", value)

	out.Reset()
	s.Execute(ctx, "alias")
	assert.Contains(t, out.String(), "alias ls='SHOW TABLES'")

	out.Reset()
	s.Execute(ctx, "unalias ls")
	assert.Contains(t, out.String(), "Removed alias ls")
	assert.False(t, s.Aliases().Has("ls"))

	out.Reset()
	s.Execute(ctx, "unalias ls")
	assert.Contains(t, out.String(), "No such alias: ls")
}

func TestBuiltinHistory(t *testing.T) {
	s, out, _ := capturingShell(t, Options{})
	ctx := context.Background()

	s.Execute(ctx, "history")
	assert.Contains(t, out.String(), "1  history")

	out.Reset()
	s.Execute(ctx, "query users")
	out.Reset()
	s.Execute(ctx, "history")
	assert.Contains(t, out.String(), "2  query users")
}

func TestBuiltinFormat(t *testing.T) {
	s, out, _ := capturingShell(t, Options{})
	ctx := context.Background()

	s.Execute(ctx, "format")
	assert.Contains(t, out.String(), "Current format: table")

	out.Reset()
	s.Execute(ctx, "format json")
	assert.Contains(t, out.String(), "Default format set to json")
	assert.Equal(t, "json", s.Session().DefaultFormat())

	out.Reset()
	s.Execute(ctx, "format bogus")
	assert.Contains(t, out.String(), `Unknown format "bogus"`)
	assert.Equal(t, "json", s.Session().DefaultFormat())
}

func TestBuiltinStatus(t *testing.T) {
	s, out, _ := capturingShell(t, Options{})

	s.Execute(context.Background(), "status")
	assert.Contains(t, out.String(), "memory://local")
}

func TestRunLoopExitsOnEOF(t *testing.T) {
	registry := command.NewRegistry()
	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{
		Input:  strings.NewReader("help\n"),
		Output: out,
		Logger: quietLogger(),
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), DefaultPrompt)
	assert.Contains(t, out.String(), "Built-in commands:")
	assert.False(t, mem.IsConnected(), "shutdown disconnects the transport")
}

func TestRunLoopExitCommand(t *testing.T) {
	mem := transport.NewMemory(command.NewRegistry())
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{
		Input:  strings.NewReader("exit\nnever-reached\n"),
		Output: out,
		Logger: quietLogger(),
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "Bye")
	assert.NotContains(t, out.String(), "never-reached")
}

func TestRunShowsContinuationPrompt(t *testing.T) {
	mem := transport.NewMemory(command.NewRegistry())
	require.NoError(t, mem.Connect(context.Background()))

	out := &bytes.Buffer{}
	s := New(mem, Options{
		Input:  strings.NewReader("query \\\nusers\nexit\n"),
		Output: out,
		Logger: quietLogger(),
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), ContinuationPrompt)
}

func TestShutdownIdempotent(t *testing.T) {
	s, _, _ := capturingShell(t, Options{})
	s.Shutdown()
	s.Shutdown()
}

func TestShutdownSavesState(t *testing.T) {
	dir := t.TempDir()
	histPath := dir + "/history"
	sessPath := dir + "/session.json"

	registry := command.NewRegistry()
	mem := transport.NewMemory(registry)
	require.NoError(t, mem.Connect(context.Background()))

	s := New(mem, Options{
		HistoryFile: histPath,
		SessionFile: sessPath,
		Output:      &bytes.Buffer{},
		Logger:      quietLogger(),
	})
	s.Execute(context.Background(), "help")
	s.Shutdown()

	assert.FileExists(t, histPath)
	assert.FileExists(t, sessPath)
}
