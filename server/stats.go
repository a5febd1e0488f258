package server

import (
	"sync/atomic"
	"time"
)

// Stats collects the server's lifetime counters. All fields are
// atomics; Snapshot is the only aggregate view.
type Stats struct {
	started time.Time

	connectionsTotal  atomic.Int64
	connectionsActive atomic.Int64
	commandsExecuted  atomic.Int64
	messagesPublished atomic.Int64
	messagesDropped   atomic.Int64
}

// NewStats returns a stats collector with the clock started.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// ConnectionOpened counts a new client.
func (s *Stats) ConnectionOpened() {
	s.connectionsTotal.Add(1)
	s.connectionsActive.Add(1)
}

// ConnectionClosed counts a client leaving.
func (s *Stats) ConnectionClosed() {
	s.connectionsActive.Add(-1)
}

// CommandExecuted counts one dispatched command.
func (s *Stats) CommandExecuted() {
	s.commandsExecuted.Add(1)
}

// MessagePublished counts one message handed to the hub.
func (s *Stats) MessagePublished() {
	s.messagesPublished.Add(1)
}

// MessageDropped counts one message discarded because a client's
// outbound buffer was full.
func (s *Stats) MessageDropped() {
	s.messagesDropped.Add(1)
}

// ActiveConnections returns the current client count.
func (s *Stats) ActiveConnections() int64 {
	return s.connectionsActive.Load()
}

// Uptime returns time since the collector started.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.started)
}

// Snapshot returns the counters as a map for the status command.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"connections_total":  s.connectionsTotal.Load(),
		"connections_active": s.connectionsActive.Load(),
		"commands_executed":  s.commandsExecuted.Load(),
		"messages_published": s.messagesPublished.Load(),
		"messages_dropped":   s.messagesDropped.Load(),
		"uptime":             s.Uptime().Round(time.Second).String(),
	}
}
