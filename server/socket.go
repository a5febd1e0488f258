//go:build !windows

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Socket errors.
var (
	// ErrServerRunning means a live server already owns the socket.
	ErrServerRunning = errors.New("server already running on socket")
)

// DefaultSocketPath returns the socket path: $XDG_RUNTIME_DIR/conch.sock
// when the runtime dir is set, otherwise a per-user file under the
// temp directory.
func DefaultSocketPath() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "conch.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("conch-%d.sock", os.Getuid()))
}

// SocketManager owns the unix socket file: stale-socket detection,
// owner-only permissions, and cleanup on close.
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
// is removed. The socket is created with mode 0600 via a temporary
// umask so no window exists where another user could connect.
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

	old := unix.Umask(0177)
	listener, err := net.Listen("unix", sm.path)
	unix.Umask(old)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", sm.path, err)
	}

	// Belt and braces: some platforms ignore the umask for sockets.
	if err := os.Chmod(sm.path, 0600); err != nil {
		listener.Close()
		os.Remove(sm.path)
		return nil, fmt.Errorf("chmod socket: %w", err)
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
