package sim

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// WithLogger sets the logger for the fake device.
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "sim"))
	}
}

// WithReject makes /connect report connected=false, for exercising the
// station's handshake failure path.
func WithReject(reject bool) func(s *Server) {
	return func(s *Server) {
		s.reject.Store(reject)
	}
}

// Server is a fake CanSat device: it serves the /connect, /data and
// /cmd endpoints the station polls.
type Server struct {
	flight *Flight
	start  time.Time
	logger *slog.Logger

	reject atomic.Bool

	mu       sync.Mutex
	lastCmd  string
	commands []string
}

// NewServer creates a fake device around the given flight, powered on
// at the time of the call.
func NewServer(flight *Flight, options ...func(s *Server)) *Server {
	s := Server{
		flight: flight,
		start:  time.Now(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Router returns the device-side HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/connect", s.handleConnect)
	r.Get("/data", s.handleData)
	r.Get("/cmd", s.handleCmd)
	return r
}

// SetReject toggles handshake rejection at runtime.
func (s *Server) SetReject(reject bool) {
	s.reject.Store(reject)
}

// LastCommand returns the most recent /cmd value.
func (s *Server) LastCommand() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCmd
}

// Commands returns every received /cmd value in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	connected := !s.reject.Load()
	s.logger.Info("handshake", slog.Bool("connected", connected))
	writeJSON(w, map[string]bool{"connected": connected})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	reading := s.flight.At(time.Since(s.start))
	writeJSON(w, frame(reading))
}

func (s *Server) handleCmd(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")

	s.mu.Lock()
	s.lastCmd = value
	s.commands = append(s.commands, value)
	s.mu.Unlock()

	s.logger.Info("command received", slog.String("value", value))
	w.Write([]byte("OK"))
}

// frame renders a reading with the wire field names the station parses.
func frame(r Reading) map[string]any {
	return map[string]any{
		"altitude":    r.Altitude,
		"pressure":    r.Pressure,
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"battery":     r.Battery,
		"compass":     r.Compass,
		"latitude":    r.Latitude,
		"longitude":   r.Longitude,
		"satellites":  r.Satellites,
		"time":        r.DeviceTime,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
