// Package server implements the reference command server the shell
// transports speak to: a unix-socket listener for the newline-delimited
// JSON protocol, an optional HTTP/WebSocket listener sharing the same
// command registry, a broadcast hub with per-subscription rules, and a
// message history ring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/standardbeagle/conch/command"
)

// Version is the server version reported in welcome frames and status.
const Version = "0.1.0"

// Server accepts client connections and dispatches their commands.
type Server struct {
	config   Config
	log      *logrus.Entry
	registry *command.Registry

	hub   *Hub
	ring  *Ring
	stats *Stats

	sockMgr  *SocketManager
	listener net.Listener
	httpSrv  *httpServer

	clients sync.Map // client id -> *conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started    time.Time
	shutdownMu sync.Mutex
	shutdown   bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.log = logger.WithField("component", "server") }
}

// WithRegistry replaces the command registry. The built-in handlers are
// registered on top of it.
func WithRegistry(registry *command.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// New creates a server from the config. Built-in handlers (ping, echo,
// status, history, publish) are registered; demo backends are wired by
// the caller against Registry and Publish.
func New(config Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:   config,
		log:      logrus.StandardLogger().WithField("component", "server"),
		registry: command.NewRegistry(),
		ring:     NewRing(config.RingSize),
		stats:    NewStats(),
		sockMgr:  NewSocketManager(config.SocketPath),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.ring, s.stats, s.log.Logger)
	s.registerBuiltins()
	return s
}

// Registry returns the command registry for additional handlers.
func (s *Server) Registry() *command.Registry { return s.registry }

// Publish broadcasts a message to subscribed clients and records it in
// the history ring.
func (s *Server) Publish(msg command.Message) {
	s.hub.Publish(msg)
}

// SocketPath returns the unix socket path.
func (s *Server) SocketPath() string { return s.sockMgr.Path() }

// HTTPAddr returns the bound HTTP address, or "" when the HTTP listener
// is disabled. Useful when the config asked for port 0.
func (s *Server) HTTPAddr() string {
	if s.httpSrv == nil {
		return ""
	}
	return s.httpSrv.Addr()
}

// Stats returns the stats collector.
func (s *Server) Stats() *Stats { return s.stats }

// Start binds the listeners and begins accepting connections.
func (s *Server) Start() error {
	s.shutdownMu.Lock()
	if s.shutdown {
		s.shutdownMu.Unlock()
		return errors.New("server already shut down")
	}
	s.shutdownMu.Unlock()

	listener, err := s.sockMgr.Listen()
	if err != nil {
		return fmt.Errorf("create socket: %w", err)
	}
	s.listener = listener
	s.started = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	if s.config.HTTPAddr != "" {
		s.httpSrv = newHTTPServer(s)
		if err := s.httpSrv.Start(); err != nil {
			s.sockMgr.Close()
			return fmt.Errorf("http listener: %w", err)
		}
		s.log.WithField("addr", s.httpSrv.Addr()).Info("http listener started")
	}

	s.log.WithField("socket", s.sockMgr.Path()).Info("server started")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// acceptLoop accepts socket clients until the listener closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.WithError(err).Warn("accept")
				continue
			}
		}

		if s.config.MaxClients > 0 && s.stats.ActiveConnections() >= int64(s.config.MaxClients) {
			s.log.Warn("max clients reached, rejecting connection")
			rejectConn(netConn)
			continue
		}

		c := newConn(netConn, s)
		s.clients.Store(c.id, c)
		s.stats.ConnectionOpened()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.clients.Delete(c.id)
				s.stats.ConnectionClosed()
			}()
			c.handle(s.ctx)
		}()
	}
}

// Stop shuts the server down: listeners close first so nothing new
// arrives, then client connections, then the hub. Errors are collected,
// not short-circuited.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	if s.shutdown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.shutdown = true
	s.shutdownMu.Unlock()

	s.log.Info("server stopping")
	s.cancel()

	var errs []error

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http listener: %w", err))
		}
	}

	s.clients.Range(func(_, value any) bool {
		value.(interface{ close() }).close()
		return true
	})

	s.hub.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := s.sockMgr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("socket cleanup: %w", err))
	}

	s.log.WithFields(logrus.Fields(s.stats.Snapshot())).Info("server stopped")
	return errors.Join(errs...)
}

// Wait blocks until the server begins shutting down.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// Info returns server status for the status command and welcome frame.
func (s *Server) Info() map[string]any {
	info := map[string]any{
		"version": Version,
		"socket":  s.sockMgr.Path(),
	}
	if s.config.HTTPAddr != "" {
		info["http_addr"] = s.config.HTTPAddr
	}
	for k, v := range s.stats.Snapshot() {
		info[k] = v
	}
	return info
}
