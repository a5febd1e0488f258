package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/standardbeagle/conch/command"
	"github.com/standardbeagle/conch/transport"
	"github.com/standardbeagle/conch/wire"
)

// httpServer serves the request/response protocol over HTTP and hosts
// the WebSocket endpoint. It shares the socket listener's registry, hub,
// and stats.
type httpServer struct {
	srv      *Server
	listener net.Listener
	http     *http.Server
}

func newHTTPServer(s *Server) *httpServer {
	h := &httpServer{srv: s}

	mux := http.NewServeMux()
	mux.HandleFunc(transport.DefaultExecutePath, h.handleExecute)
	mux.HandleFunc(transport.DefaultPingPath, h.handlePing)
	mux.HandleFunc(transport.DefaultHealthPath, h.handleHealth)
	mux.HandleFunc("/ws", h.handleWS)

	h.http = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return h
}

// Start binds the TCP listener and serves in the background.
func (h *httpServer) Start() error {
	listener, err := net.Listen("tcp", h.srv.config.HTTPAddr)
	if err != nil {
		return err
	}
	h.listener = listener

	h.srv.wg.Add(1)
	go func() {
		defer h.srv.wg.Done()
		if err := h.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.srv.log.WithError(err).Warn("http serve")
		}
	}()
	return nil
}

// Addr returns the bound address, useful when the config said ":0".
func (h *httpServer) Addr() string {
	if h.listener == nil {
		return h.srv.config.HTTPAddr
	}
	return h.listener.Addr().String()
}

// Stop shuts the HTTP server down gracefully.
func (h *httpServer) Stop(ctx context.Context) error {
	return h.http.Shutdown(ctx)
}

// handleExecute runs one command frame POSTed as JSON and answers with
// a response frame. Handler failures still travel as 200s; only a
// request the server cannot parse is an HTTP-level error.
func (h *httpServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResultStatus(w, http.StatusMethodNotAllowed, command.Fail("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, wire.MaxLineBytes))
	if err != nil {
		writeResultStatus(w, http.StatusBadRequest, command.Failf("read request: %v", err))
		return
	}

	frame, err := wire.ParseFrame(bytes.TrimSpace(body))
	if err != nil {
		writeResultStatus(w, http.StatusBadRequest, command.FromError(err))
		return
	}
	if frame.Type != wire.TypeCommand {
		writeResultStatus(w, http.StatusBadRequest, command.Failf("expected a command frame, got %s", frame.Type))
		return
	}
	cmd, err := frame.AsCommand()
	if err != nil {
		writeResultStatus(w, http.StatusBadRequest, command.FromError(err))
		return
	}

	h.srv.stats.CommandExecuted()
	writeResultStatus(w, http.StatusOK, h.srv.registry.Execute(r.Context(), cmd))
}

func (h *httpServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeResultStatus(w, http.StatusOK, command.OKMsg("pong"))
}

func (h *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"server": h.srv.Info(),
	})
}

func writeResultStatus(w http.ResponseWriter, status int, res command.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.ResponseEnvelope(res))
}
