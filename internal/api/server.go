package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"storekit/internal/guard"
	"storekit/internal/journal"
	"storekit/internal/selector"
	"storekit/internal/store"
	pkgstore "storekit/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds PATCH and PUT request bodies
const maxBodyBytes = 1 << 20

// Server provides HTTP API endpoints for a document store
type Server struct {
	handle   pkgstore.Handle[store.Map]
	journal  *journal.Journal[store.Map]
	status   pkgstore.Reader[Status]
	stream   http.Handler
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithJournal serves /api/history from j
func WithJournal(j *journal.Journal[store.Map]) Option {
	return func(s *Server) { s.journal = j }
}

// WithStatus serves /api/status from r
func WithStatus(r pkgstore.Reader[Status]) Option {
	return func(s *Server) { s.status = r }
}

// WithStream serves the WebSocket stream on /ws
func WithStream(h http.Handler) Option {
	return func(s *Server) { s.stream = h }
}

// WithMetrics serves /metrics from g
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a new API server
func NewServer(handle pkgstore.Handle[store.Map], logger *zap.Logger, addr string, opts ...Option) *Server {
	s := &Server{
		handle: handle,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	if s.stream != nil {
		mux.Handle("/ws", s.stream)
	}
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for use with httptest
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

// HistoryEntry is one journal entry with the keys it changed
type HistoryEntry struct {
	journal.Entry[store.Map]
	Changed []string `json:"changed"`
}

// StatusResponse is the JSON body of /api/status
type StatusResponse struct {
	Status
	Seq  uint64 `json:"seq"`
	Keys int    `json:"keys"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var rejected *guard.RejectedError
	if errors.As(err, &rejected) {
		resp.Rule = rejected.Rule
	}
	s.writeJSON(w, code, resp)
}

// transitionStatus maps a SetState error to an HTTP status code
func transitionStatus(err error) int {
	switch {
	case errors.Is(err, pkgstore.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, guard.ErrRejected):
		return http.StatusConflict
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleState reads, merges into or replaces the document
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetState(w, r)
	case http.MethodPatch, http.MethodPut:
		s.handleWriteState(w, r)
	default:
		w.Header().Set("Allow", "GET, PATCH, PUT")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.handle.GetState()

	expression := r.URL.Query().Get("select")
	if expression == "" {
		s.writeJSON(w, http.StatusOK, state)
		return
	}

	sel, err := selector.CompileExpr(expression)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := sel.Eval(state)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Debug("Selected state served",
		zap.String("select", expression),
		zap.String("remote_addr", r.RemoteAddr))
	s.writeJSON(w, http.StatusOK, value)
}

func (s *Server) handleWriteState(w http.ResponseWriter, r *http.Request) {
	var doc store.Map
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&doc); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := decoder.Decode(&json.RawMessage{}); err != io.EOF {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid JSON body: unexpected data after object"))
		return
	}
	if doc == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("body must be a JSON object"))
		return
	}

	var err error
	if r.Method == http.MethodPatch {
		err = s.handle.SetState(store.Update(func(current store.Map) store.Map {
			return store.MergeMap(current, doc)
		}))
	} else {
		err = s.replace(doc)
	}
	if err != nil {
		code := transitionStatus(err)
		if code == http.StatusInternalServerError {
			s.logger.Error("State update failed", zap.String("method", r.Method), zap.Error(err))
		} else {
			s.logger.Debug("State update refused", zap.String("method", r.Method), zap.Error(err))
		}
		s.writeError(w, code, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.handle.GetState())
}

func (s *Server) replace(doc store.Map) error {
	if replacer, ok := s.handle.(pkgstore.Replacer[store.Map]); ok {
		return replacer.ReplaceState(store.Set(doc))
	}
	return s.handle.SetState(store.Set(doc))
}

// handleHistory returns journal entries newer than ?since
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, errors.New("history is not enabled"))
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q: %w", raw, err))
			return
		}
		since = parsed
	}

	entries := s.journal.Since(since)
	history := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		history = append(history, HistoryEntry{
			Entry:   entry,
			Changed: store.ChangedKeys(entry.Prev, entry.Next),
		})
	}

	s.writeJSON(w, http.StatusOK, history)
}

// handleStatus returns daemon status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.status == nil {
		s.writeError(w, http.StatusNotFound, errors.New("status is not enabled"))
		return
	}

	resp := StatusResponse{
		Status: s.status.GetState(),
		Keys:   len(s.handle.GetState()),
	}
	if s.journal != nil {
		resp.Seq = s.journal.Seq()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
