// Package feed serves the dashboard API: session control, latest-sample
// and log queries, CSV export, a WebSocket event stream and Prometheus
// metrics.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osadchyi/cansat-ground/internal/export"
	"github.com/osadchyi/cansat-ground/internal/session"
	"github.com/osadchyi/cansat-ground/internal/transport"
)

// TransportFactory builds a transport for a connect request. kind names
// the adapter ("http-poll", "ble-notify"), target is adapter-specific
// (base URL, device name prefix).
type TransportFactory func(kind, target string) (transport.Transport, error)

// WithLogger sets the logger for the server and its WebSocket hub.
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "feed"))
	}
}

// WithSink sets the sink used by POST /api/export. Defaults to a
// FileSink in the working directory.
func WithSink(sink export.Sink) func(s *Server) {
	return func(s *Server) {
		s.sink = sink
	}
}

// Server exposes one Session over HTTP.
type Server struct {
	base    context.Context
	session *session.Session
	factory TransportFactory
	sink    export.Sink
	logger  *slog.Logger

	hub     *Hub
	metrics *Metrics
}

// NewServer wires the dashboard API around sess. ctx bounds the
// transport streams started by POST /api/connect; it must outlive the
// individual requests, so callers pass the application context.
func NewServer(ctx context.Context, sess *session.Session, factory TransportFactory, options ...func(s *Server)) *Server {
	s := Server{
		base:    ctx,
		session: sess,
		factory: factory,
		sink:    export.FileSink{Dir: "."},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	s.hub = NewHub(s.logger)
	s.metrics = NewMetrics(sess)
	sess.AddObserver(s.hub)
	sess.AddObserver(s.metrics)

	return &s
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/latest", s.latest)
		r.Get("/log.csv", s.logCSV)
		r.Get("/live", s.hub.ServeHTTP)

		r.Post("/connect", s.connect)
		r.Post("/disconnect", s.disconnect)
		r.Post("/logging/start", s.loggingStart)
		r.Post("/logging/stop", s.loggingStop)
		r.Post("/reset", s.reset)
		r.Post("/command", s.command)
		r.Post("/export", s.export)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Close drops the WebSocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) latest(w http.ResponseWriter, _ *http.Request) {
	sample, ok := s.session.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) logCSV(w http.ResponseWriter, _ *http.Request) {
	data, err := export.Export(s.session.LogSnapshot())
	if errors.Is(err, export.ErrEmptyLog) {
		writeNotice(w, "log is empty, nothing to export")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.DefaultFilename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type connectRequest struct {
	Transport string `json:"transport"`
	Target    string `json:"target"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	tr, err := s.factory(req.Transport, req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// The stream must survive this request, hence the server context.
	if err := s.session.Connect(s.base, tr); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrAlreadyConnected) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}

	s.logger.Info("connected", slog.String("transport", req.Transport), slog.String("target", req.Target))
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) disconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		s.logger.Warn("transport teardown", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) loggingStart(w http.ResponseWriter, _ *http.Request) {
	s.session.StartLogging()
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) loggingStop(w http.ResponseWriter, _ *http.Request) {
	s.session.StopLogging()
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.Status())
}

type commandRequest struct {
	Value string `json:"value"`
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	if err := s.session.SendCommand(r.Context(), req.Value); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, session.ErrNotConnected):
			status = http.StatusConflict
		case errors.Is(err, session.ErrCommandUnsupported):
			status = http.StatusNotImplemented
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sent": req.Value})
}

func (s *Server) export(w http.ResponseWriter, _ *http.Request) {
	data, err := export.Export(s.session.LogSnapshot())
	if errors.Is(err, export.ErrEmptyLog) {
		writeNotice(w, "log is empty, nothing to export")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.sink.Save(export.DefaultFilename, data); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("saving log: %w", err))
		return
	}

	s.logger.Info("log exported", slog.String("file", export.DefaultFilename), slog.Int("bytes", len(data)))
	writeJSON(w, http.StatusOK, map[string]string{"file": export.DefaultFilename})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeNotice reports an empty log as a user notice, not an error.
func writeNotice(w http.ResponseWriter, notice string) {
	writeJSON(w, http.StatusGone, map[string]string{"notice": notice})
}
