package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/transport"
)

func startHTTPServer(t *testing.T) *Server {
	t.Helper()
	return startServer(t, func(cfg *Config) {
		cfg.HTTPAddr = "127.0.0.1:0"
	})
}

func TestHTTPExecute(t *testing.T) {
	srv := startHTTPServer(t)
	ctx := context.Background()

	tr := transport.NewHTTP("http://" + srv.HTTPAddr())
	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Ping(ctx))

	res := tr.Send(ctx, command.Parse("echo over http"))
	require.True(t, res.Success, res.Error)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "over http", data["echo"])

	// Handler failures are still HTTP 200s with a failed result.
	res = tr.Send(ctx, command.Parse("frobnicate"))
	assert.True(t, res.Failed())
	assert.Equal(t, "unknown command: frobnicate", res.Error)
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := startHTTPServer(t)
	ctx := context.Background()

	tr := transport.NewWS("ws://" + srv.HTTPAddr() + "/ws")
	require.NoError(t, tr.Connect(ctx))
	defer tr.Disconnect()

	require.NoError(t, tr.Ping(ctx))

	res := tr.Send(ctx, command.Parse("echo over websocket"))
	require.True(t, res.Success, res.Error)
	data, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "over websocket", data["echo"])
}

func TestWebSocketStreaming(t *testing.T) {
	srv := startHTTPServer(t)
	ctx := context.Background()

	tr := transport.NewWS("ws://" + srv.HTTPAddr() + "/ws")
	require.NoError(t, tr.Connect(ctx))
	defer tr.Disconnect()

	require.NoError(t, tr.Subscribe(ctx, "sensor/temperature", ""))

	ack, err := tr.Receive(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "response", ack.Type)

	msg := command.DataMessage(19.5, "sensor-2")
	msg.Metadata = map[string]any{"topic": "sensor/temperature"}
	srv.Publish(msg)

	got, err := tr.Receive(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "data", got.Type)
	assert.Equal(t, 19.5, got.Payload)
	assert.Equal(t, "sensor/temperature", got.Metadata["topic"])
}
