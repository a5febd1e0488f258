//go:build windows

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Socket errors.
var (
	// ErrServerRunning means a live server already owns the socket.
	ErrServerRunning = errors.New("server already running on socket")
)

// DefaultSocketPath returns the socket path. Windows 10 1803+ supports
// unix domain sockets with a ~108 character path limit, so keep the
// path short under the temp directory.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "conch.sock")
}

// SocketManager owns the unix socket file: stale-socket detection and
// cleanup on close. Windows has no umask; the socket file inherits the
// temp directory's ACL.
type SocketManager struct {
	path     string
	listener net.Listener
}

// NewSocketManager returns a manager for the given path, defaulting to
// DefaultSocketPath.
func NewSocketManager(path string) *SocketManager {
	if path == "" {
		path = DefaultSocketPath()
	}
	return &SocketManager{path: path}
}

// Path returns the socket path.
func (sm *SocketManager) Path() string { return sm.path }

// Listen binds the socket. A leftover socket file is probed first: if
// something answers, ErrServerRunning; if nothing does, the stale file
// is removed.
func (sm *SocketManager) Listen() (net.Listener, error) {
	if _, err := os.Stat(sm.path); err == nil {
		if socketAlive(sm.path) {
			return nil, fmt.Errorf("%w: %s", ErrServerRunning, sm.path)
		}
		if err := os.Remove(sm.path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(sm.path), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", sm.path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", sm.path, err)
	}

	sm.listener = listener
	return listener, nil
}

// Close closes the listener and removes the socket file.
func (sm *SocketManager) Close() error {
	var errs []error
	if sm.listener != nil {
		if err := sm.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		sm.listener = nil
	}
	if err := os.Remove(sm.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// socketAlive reports whether a server answers on the socket.
func socketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
