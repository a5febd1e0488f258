package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/wire"
)

// Default HTTP endpoint paths, matching the reference server.
const (
	DefaultExecutePath = "/execute"
	DefaultPingPath    = "/ping"
	DefaultHealthPath  = "/health"
)

// HTTP is a request/response transport that POSTs command frames to a
// server endpoint. It does not support streaming; use the WebSocket
// transport against the same server for that.
type HTTP struct {
	baseURL     string
	executePath string
	pingPath    string
	healthPath  string
	client      *http.Client

	mu        sync.Mutex
	connected bool
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = c }
}

// WithPaths overrides the execute, ping, and health paths. Empty
// strings keep the defaults.
func WithPaths(execute, ping, health string) HTTPOption {
	return func(t *HTTP) {
		if execute != "" {
			t.executePath = execute
		}
		if ping != "" {
			t.pingPath = ping
		}
		if health != "" {
			t.healthPath = health
		}
	}
}

// NewHTTP returns a transport for the given base URL, for example
// "http://127.0.0.1:7330".
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		baseURL:     strings.TrimRight(baseURL, "/"),
		executePath: DefaultExecutePath,
		pingPath:    DefaultPingPath,
		healthPath:  DefaultHealthPath,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect verifies the server is reachable via the health endpoint.
func (t *HTTP) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+t.healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", t.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect %s: server returned status %s", t.baseURL, resp.Status)
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Disconnect marks the transport disconnected. HTTP holds no
// long-lived connection; this only flips the flag. Idempotent.
func (t *HTTP) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

// IsConnected reports whether Connect succeeded.
func (t *HTTP) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send POSTs the command frame and parses the response body as a
// result frame. The body is consulted regardless of status; a non-200
// status becomes part of the error when the body is not a usable
// response.
func (t *HTTP) Send(ctx context.Context, cmd command.ParsedCommand) command.Result {
	if !t.IsConnected() {
		return command.Fail("not connected")
	}

	body, err := json.Marshal(struct {
		Type      string            `json:"type"`
		Command   string            `json:"command"`
		Arguments []string          `json:"arguments,omitempty"`
		Options   map[string]string `json:"options,omitempty"`
		Raw       string            `json:"raw,omitempty"`
	}{wire.TypeCommand, cmd.Command, cmd.Arguments, cmd.Options, cmd.Raw})
	if err != nil {
		return command.Failf("encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+t.executePath, bytes.NewReader(body))
	if err != nil {
		return command.FromError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return command.Failf("connection failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, wire.MaxLineBytes))
	if err != nil {
		return command.Failf("connection failed: %v", err)
	}

	frame, perr := wire.ParseFrame(bytes.TrimSpace(respBody))
	if resp.StatusCode != http.StatusOK {
		if perr == nil {
			if res := frame.AsResult(); res.Error != "" {
				return command.Failf("server returned status %s: %s", resp.Status, res.Error)
			}
		}
		return command.Failf("server returned status %s", resp.Status)
	}
	if perr != nil {
		return command.Fail("invalid JSON response")
	}
	return frame.AsResult()
}

// Ping GETs the ping endpoint; any non-200 or network failure is a
// liveness failure.
func (t *HTTP) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+t.pingPath, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: server returned status %s", resp.Status)
	}
	return nil
}

// Endpoint returns the base URL.
func (t *HTTP) Endpoint() string { return t.baseURL }

// Info describes the transport.
func (t *HTTP) Info() map[string]any {
	return map[string]any{
		"kind":      "http",
		"endpoint":  t.baseURL,
		"connected": t.IsConnected(),
		"streaming": false,
	}
}
