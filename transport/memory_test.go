package transport

import (
	"context"
	"testing"
	"time"

	"github.com/standardbeagle/conch/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *command.Registry {
	reg := command.NewRegistry()
	reg.RegisterFunc("echo", "echo arguments back", func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		return command.OK(cmd.Arguments)
	})
	reg.RegisterFunc("boom", "always fails", func(ctx context.Context, cmd command.ParsedCommand) command.Result {
		return command.Fail("boom")
	})
	return reg
}

func TestMemorySendDispatchesToRegistry(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	res := m.Send(context.Background(), command.Parse("echo hello world"))
	require.True(t, res.Success)
	assert.Equal(t, []string{"hello", "world"}, res.Data)
}

func TestMemorySendWhileDisconnected(t *testing.T) {
	m := NewMemory(newTestRegistry())

	res := m.Send(context.Background(), command.Parse("echo hi"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not connected")
}

func TestMemoryDisconnectIdempotent(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())
	assert.False(t, m.IsConnected())
}

func TestMemorySendAsyncFoldsResponseIntoStream(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.SendAsync(context.Background(), command.Parse("echo one")))

	msg, err := m.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, []string{"one"}, msg.Payload)
}

func TestMemoryAsyncFailureBecomesErrorMessage(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.SendAsync(context.Background(), command.Parse("boom")))

	msg, err := m.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "boom", msg.Payload)
}

func TestMemoryReceiveTimeout(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	_, err := m.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestMemoryPublishAndCallback(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	var seen []string
	m.OnMessage(func(msg command.Message) { seen = append(seen, msg.Type) })

	m.Publish(command.SystemMessage("hello"))

	msg, err := m.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "system", msg.Type)
	assert.Equal(t, []string{"system"}, seen)
}

func TestMemoryPublishDropsWhenFull(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.NoError(t, m.Connect(context.Background()))

	for i := 0; i < 70; i++ {
		m.Publish(command.SystemMessage("flood"))
	}
	assert.Equal(t, int64(6), m.Dropped())
}

func TestMemoryStreamingFlags(t *testing.T) {
	m := NewMemory(newTestRegistry())
	require.True(t, m.SupportsStreaming())
	assert.False(t, m.IsStreaming())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.StartStreaming(context.Background()))
	assert.True(t, m.IsStreaming())

	require.NoError(t, m.StopStreaming())
	assert.False(t, m.IsStreaming())
}
