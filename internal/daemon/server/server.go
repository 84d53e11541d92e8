// Package server provides the kernel's network front ends: the HTTP API
// and the NUL-delimited TCP listener.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunningConfig is exposed via /api/config so clients can see what the
// kernel is actually using.
type RunningConfig struct {
	Address    string         `json:"address"`
	Framing    string         `json:"framing"`
	NulAddress string         `json:"nul_address,omitempty"`
	ConfigFile string         `json:"config_file,omitempty"`
	Engine     engine.Options `json:"engine"`
	StartedAt  time.Time      `json:"started_at"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Server serves one engine over HTTP and, optionally, NUL framing.
type Server struct {
	logger   *logrus.Entry
	engine   *engine.Engine
	upgrader websocket.Upgrader

	mu            sync.Mutex
	runningConfig *RunningConfig
	http          *http.Server
	nulListener   net.Listener
	nulConns      map[net.Conn]struct{}
	nulWG         sync.WaitGroup
	closed        bool
}

// New creates a Server for eng.
func New(eng *engine.Engine, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		logger:   logger,
		engine:   eng,
		nulConns: make(map[net.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Editors connect from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetRunningConfig sets the configuration reported by /api/config.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningConfig = cfg
}

func (s *Server) getRunningConfig() *RunningConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningConfig
}

// Handler returns the HTTP API, with h2c so HTTP/2 clients can connect
// without TLS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleExecute)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/cells", s.handleCells)
	mux.HandleFunc("/api/preview", s.handlePreview)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/api/stream", s.handleStreamState)
	mux.HandleFunc("/api/ws", s.handleWebsocket)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe listens on a TCP address and serves the HTTP API. It
// blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves the HTTP API on ln.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	s.logger.WithField("address", ln.Addr().String()).Info("HTTP listener ready")
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ListenAndServeNUL listens on a TCP address for NUL-delimited requests.
func (s *Server) ListenAndServeNUL(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeNUL(ln)
}

// ServeNUL accepts NUL-framed connections on ln. Each connection carries
// one request and is closed after the response.
func (s *Server) ServeNUL(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.nulListener = ln
	s.mu.Unlock()

	s.logger.WithField("address", ln.Addr().String()).Info("NUL listener ready")
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.nulListener == nil
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}

		s.mu.Lock()
		s.nulConns[conn] = struct{}{}
		s.nulWG.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.nulWG.Done()
			defer func() {
				s.mu.Lock()
				delete(s.nulConns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handleNULConn(conn)
		}()
	}
}

func (s *Server) handleNULConn(conn net.Conn) {
	log := s.logger.WithField("remote", conn.RemoteAddr().String())

	req, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		if err == io.EOF {
			return
		}
		log.WithError(err).Warn("Rejected NUL frame")
		_ = protocol.WriteFrameResponse(conn, nil, err)
		return
	}

	out, err := s.engine.Execute(context.Background(), req)
	if werr := protocol.WriteFrameResponse(conn, out, err); werr != nil {
		log.WithError(werr).Debug("Failed to write NUL response")
	}
}

// Shutdown stops both listeners. In-flight HTTP requests are allowed to
// finish until ctx expires; open NUL connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.mu.Lock()
	s.closed = true
	srv := s.http
	ln := s.nulListener
	s.nulListener = nil
	for conn := range s.nulConns {
		conn.Close()
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.nulWG.Wait()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleExecute runs one cell. Editor clients get the text/plain body;
// clients that accept JSON get the full outcome.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	write := protocol.WriteHTTP
	if protocol.WantsJSON(r) {
		write = protocol.WriteHTTPJSON
	}

	req, err := protocol.DecodeJSON(r.Body)
	if err != nil {
		s.logger.WithError(err).Debug("Rejected request")
		write(w, nil, err)
		return
	}

	// A cycle runs to completion even if the client goes away.
	out, err := s.engine.Execute(context.WithoutCancel(r.Context()), req)
	write(w, out, err)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Get())
}

// handleCells returns the session's cells on GET and stages one on POST.
func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Cells())

	case http.MethodPost:
		req, err := protocol.DecodeJSON(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.Result{Error: protocol.NewErrorBody(err)})
			return
		}
		n := s.engine.Stage(req)
		writeJSON(w, http.StatusOK, map[string]int{"cells": n})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePreview assembles the session without running it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	active, err := strconv.Atoi(r.URL.Query().Get("active"))
	if err != nil {
		http.Error(w, "active must be an integer fragment", http.StatusBadRequest)
		return
	}
	artifact, err := s.engine.Preview(active)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.Result{Error: protocol.NewErrorBody(err)})
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// handleSession discards the live session on DELETE.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.getRunningConfig()
	if cfg == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleStreamState provides Server-Sent Events for state updates.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	st := s.engine.Store()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	if data, err := json.Marshal(protocol.InitialEvent(st.Get())); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			ev := protocol.EventFromUpdate(update)
			if ev == nil {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal update")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleWebsocket streams the same events as /api/stream over a websocket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	st := s.engine.Store()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	// The reader only exists to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if err := send(protocol.InitialEvent(st.Get())); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case update, ok := <-ch:
			if !ok {
				return
			}
			ev := protocol.EventFromUpdate(update)
			if ev == nil {
				continue
			}
			if err := send(ev); err != nil {
				s.logger.WithError(err).Debug("Websocket client dropped")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
