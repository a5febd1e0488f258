package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/standardbeagle/conch/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var frame struct {
			Command   string   `json:"command"`
			Arguments []string `json:"arguments"`
		}
		require.NoError(t, json.Unmarshal(body, &frame))

		switch frame.Command {
		case "echo":
			json.NewEncoder(w).Encode(command.OK(frame.Arguments))
		case "teapot":
			w.WriteHeader(http.StatusTeapot)
			json.NewEncoder(w).Encode(command.Fail("short and stout"))
		case "garbage":
			w.Write([]byte("<html>not json</html>"))
		case "fail500":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("internal error page"))
		default:
			json.NewEncoder(w).Encode(command.Failf("unknown command: %s", frame.Command))
		}
	})

	return httptest.NewServer(mux)
}

func TestHTTPConnectAndSend(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	require.NoError(t, tr.Connect(context.Background()))
	require.True(t, tr.IsConnected())

	res := tr.Send(context.Background(), command.Parse("echo a b"))
	require.True(t, res.Success)
	assert.Equal(t, []any{"a", "b"}, res.Data)
}

func TestHTTPSendBeforeConnect(t *testing.T) {
	tr := NewHTTP("http://127.0.0.1:1")
	res := tr.Send(context.Background(), command.Parse("echo"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not connected")
}

func TestHTTPNon200WithResponseBody(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	require.NoError(t, tr.Connect(context.Background()))

	res := tr.Send(context.Background(), command.Parse("teapot"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "418")
	assert.Contains(t, res.Error, "short and stout")
}

func TestHTTPNon200WithoutParsableBody(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	require.NoError(t, tr.Connect(context.Background()))

	res := tr.Send(context.Background(), command.Parse("fail500"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "500")
}

func TestHTTPInvalidJSONBody(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	require.NoError(t, tr.Connect(context.Background()))

	res := tr.Send(context.Background(), command.Parse("garbage"))
	assert.False(t, res.Success)
	assert.Equal(t, "invalid JSON response", res.Error)
}

func TestHTTPUnreachableServer(t *testing.T) {
	tr := NewHTTP("http://127.0.0.1:1")
	err := tr.Connect(context.Background())
	require.Error(t, err)
	assert.Error(t, tr.Ping(context.Background()))
}

func TestHTTPPing(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	assert.NoError(t, tr.Ping(context.Background()))
}

func TestHTTPDisconnectIdempotent(t *testing.T) {
	srv := newTestHTTPServer(t)
	defer srv.Close()

	tr := NewHTTP(srv.URL)
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Disconnect())
	require.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())
}
