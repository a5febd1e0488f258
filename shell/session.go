package shell

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session key-value defaults.
const (
	DefaultPrompt = "shell> "
	DefaultFormat = "table"
)

// Session is the shell's persistent key-value state: user-set
// variables plus the lifetime counters accumulated across runs. It is
// saved as JSON with owner-only permissions on shutdown; a missing or
// corrupt file silently yields defaults.
type Session struct {
	mu       sync.Mutex
	path     string
	values   map[string]any
	started  time.Time
	commands int64
}

// NewSession returns a session persisted at path (empty disables
// persistence), preloaded with defaults and any state the file holds.
func NewSession(path string) *Session {
	s := &Session{
		path:    path,
		started: time.Now(),
		values: map[string]any{
			"server_url":     "",
			"default_format": DefaultFormat,
			"prompt":         DefaultPrompt,
		},
	}
	s.load()
	return s
}

// load merges the session file over the defaults. Best-effort: any
// read or decode failure leaves the defaults in place.
func (s *Session) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		return
	}
	for k, v := range stored {
		s.values[k] = v
	}
}

// Get returns a session value.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns a session value as a string, or fallback when the
// key is absent or not a string.
func (s *Session) GetString(key, fallback string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return fallback
}

// Set stores a session value.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Prompt returns the configured prompt.
func (s *Session) Prompt() string {
	return s.GetString("prompt", DefaultPrompt)
}

// DefaultFormat returns the configured output format.
func (s *Session) DefaultFormat() string {
	return s.GetString("default_format", DefaultFormat)
}

// RecordCommand counts one executed command for this run.
func (s *Session) RecordCommand() {
	s.mu.Lock()
	s.commands++
	s.values["last_command_at"] = time.Now().Format(time.RFC3339)
	s.mu.Unlock()
}

// Commands returns the number of commands executed this run.
func (s *Session) Commands() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Snapshot returns a copy of the session values plus this run's
// metrics, for the status builtin.
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(map[string]any, len(s.values)+2)
	for k, v := range s.values {
		snap[k] = v
	}
	snap["session_commands"] = s.commands
	snap["session_duration"] = time.Since(s.started).Round(time.Second).String()
	return snap
}

// Save writes the session file, folding this run's command count and
// duration into the lifetime totals. Atomic write, owner-only
// permissions.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	out := make(map[string]any, len(s.values)+3)
	for k, v := range s.values {
		out[k] = v
	}
	out["total_commands_ever"] = numeric(s.values["total_commands_ever"]) + float64(s.commands)
	out["total_session_duration"] = numeric(s.values["total_session_duration"]) + time.Since(s.started).Seconds()
	out["last_saved"] = time.Now().Format(time.RFC3339)
	s.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
