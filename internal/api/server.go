package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/logbuffer"
	"github.com/wdalert/alertd/internal/state"
	"github.com/wdalert/alertd/internal/types"
)

const (
	maxEmitBody     = 64 << 10
	defaultLogLimit = 200
)

// Dispatcher is the part of the alert dispatcher exposed over HTTP
type Dispatcher interface {
	Emit(event string, level types.Severity, title, text string, fields map[string]any)
	Enabled() bool
	QueueDepth() int
	QueueCapacity() int
	ChannelNames() []string
	Snapshot() state.State
}

// EmitRequest is the body accepted by POST /api/emit
type EmitRequest struct {
	Event  string         `json:"event"`
	Level  string         `json:"level"`
	Title  string         `json:"title"`
	Text   string         `json:"text"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Server provides the HTTP API
type Server struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	addr       string
	logBuffer  *logbuffer.LogBuffer
	startTime  time.Time

	versionMu sync.RWMutex
	version   string
	commit    string
	buildDate string

	httpMu sync.Mutex
	http   *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(dispatcher Dispatcher, logger zerolog.Logger, addr string) *Server {
	return &Server{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "api").Logger(),
		addr:       addr,
		startTime:  time.Now(),
	}
}

// SetLogBuffer sets the buffer served at /api/logs
func (s *Server) SetLogBuffer(lb *logbuffer.LogBuffer) {
	s.logBuffer = lb
}

// SetVersion sets the version information reported by /status
func (s *Server) SetVersion(version, commit, buildDate string) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = version
	s.commit = commit
	s.buildDate = buildDate
}

// Handler returns the routes of the API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/emit", s.handleEmit)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpMu.Lock()
	s.http = srv
	s.httpMu.Unlock()

	s.logger.Info().
		Str("address", s.addr).
		Msg("Starting API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpMu.Lock()
	srv := s.http
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns the dispatcher summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.versionMu.RLock()
	version, commit, buildDate := s.version, s.commit, s.buildDate
	s.versionMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        s.dispatcher.Enabled(),
		"queue_depth":    s.dispatcher.QueueDepth(),
		"queue_capacity": s.dispatcher.QueueCapacity(),
		"channels":       s.dispatcher.ChannelNames(),
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"version":        version,
		"commit":         commit,
		"build_date":     buildDate,
	})
}

// handleEmit queues an alert
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEmitBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if !s.dispatcher.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "alerts disabled")
		return
	}

	level := types.ParseSeverity(req.Level)
	s.dispatcher.Emit(req.Event, level, req.Title, req.Text, req.Fields)

	s.logger.Debug().
		Str("event", req.Event).
		Str("level", string(level)).
		Msg("Alert accepted")

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"event":  req.Event,
		"level":  string(level),
	})
}

// handleState returns the suppression state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Snapshot())
}

// handleLogs returns recent log entries as JSON
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := []logbuffer.Entry{}
	if s.logBuffer != nil {
		entries = append(entries, s.logBuffer.Recent(limit)...)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
