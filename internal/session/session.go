// Package session implements the telemetry session state machine: the
// live connection, the latest sample and the append-only log.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
	"github.com/osadchyi/cansat-ground/internal/transport"
)

// DefaultSampleBacklog buffers samples between the transport and the
// session drain loop.
const DefaultSampleBacklog = 16

var (
	// ErrAlreadyConnected is returned by Connect unless the session is
	// Disconnected.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrNotConnected is returned by SendCommand outside Connected.
	ErrNotConnected = errors.New("session: not connected")

	// ErrCommandUnsupported is returned when the active transport has
	// no command channel.
	ErrCommandUnsupported = errors.New("session: transport does not accept commands")

	// ErrConnectAborted is returned when a disconnect lands between the
	// transport handshake and the session becoming Connected.
	ErrConnectAborted = errors.New("session: connect aborted by disconnect")
)

// Status is a point-in-time snapshot of the session for the dashboard.
type Status struct {
	State         State           `json:"state"`
	LoggingActive bool            `json:"logging"`
	LogLength     int             `json:"logLength"`
	Transport     string          `json:"transport,omitempty"`
	Stats         transport.Stats `json:"stats"`
	LastError     string          `json:"lastError,omitempty"`
}

// Observer receives session events. Callbacks run on the session's
// goroutines and must not block.
type Observer interface {
	// OnSample fires for every accepted sample; logged reports whether
	// the sample was appended to the log.
	OnSample(sample telemetry.Sample, logged bool)

	// OnStatus fires after every status-affecting operation.
	OnStatus(status Status)
}

// WithLogger sets the logger for the session.
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("component", "session"))
	}
}

// WithClearLatestOnDisconnect makes Disconnect also clear the latest
// sample. By default the dashboard keeps showing the last known values.
func WithClearLatestOnDisconnect(clear bool) func(s *Session) {
	return func(s *Session) {
		s.clearLatestOnDisconnect = clear
	}
}

// WithSampleBacklog sets the intake channel capacity.
func WithSampleBacklog(n int) func(s *Session) {
	return func(s *Session) {
		if n > 0 {
			s.backlog = n
		}
	}
}

// Session is the telemetry session state machine.
//
// Connection states move Disconnected → Connecting → Connected and back
// to Disconnected on disconnect or handshake failure. Logging is an
// orthogonal flag: its value survives connect/disconnect cycles and is
// only dropped by Reset.
type Session struct {
	mu            sync.Mutex
	state         State
	loggingActive bool
	latest        telemetry.Sample
	hasLatest     bool
	log           *Log
	observers     []Observer

	tr         transport.Transport
	generation uint64 // bumped per connect; stale samples carry an old one
	cancel     context.CancelFunc
	drainDone  chan struct{}
	lastStats  transport.Stats
	lastErr    error

	clearLatestOnDisconnect bool
	backlog                 int
	logger                  *slog.Logger
}

// New creates a disconnected session with an empty log.
func New(options ...func(s *Session)) *Session {
	s := Session{
		state:   StateDisconnected,
		log:     NewLog(),
		backlog: DefaultSampleBacklog,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// AddObserver registers an event observer.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Connect runs the transport handshake and starts draining its stream.
// The context governs the handshake and the lifetime of the stream, so
// callers pass an application-scoped context, not a request-scoped one.
func (s *Session) Connect(ctx context.Context, tr transport.Transport) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.generation++
	gen := s.generation
	s.tr = tr
	s.lastErr = nil
	s.mu.Unlock()
	s.notifyStatus()

	s.logger.Info("connecting", slog.String("transport", tr.Kind()))

	samples := make(chan telemetry.Sample, s.backlog)
	streamErrs, err := tr.Connect(ctx, samples)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.tr = nil
		s.lastErr = err
		s.mu.Unlock()
		s.notifyStatus()

		s.logger.Error("connect failed", slog.String("transport", tr.Kind()), slog.String("error", err.Error()))
		return fmt.Errorf("session: connect: %w", err)
	}

	drainCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.generation != gen || s.state != StateConnecting {
		// A disconnect (or a newer connect) won the race while the
		// handshake was in flight; this stream must not go live.
		s.mu.Unlock()
		cancel()
		if derr := tr.Disconnect(); derr != nil {
			s.logger.Warn("discarding aborted transport", slog.String("error", derr.Error()))
		}
		return ErrConnectAborted
	}
	s.state = StateConnected
	s.cancel = cancel
	s.drainDone = done
	s.mu.Unlock()
	s.notifyStatus()

	s.logger.Info("connected", slog.String("transport", tr.Kind()))

	go func() {
		defer close(done)
		s.drain(drainCtx, gen, samples, streamErrs)
	}()

	return nil
}

// Disconnect tears down the transport and returns the session to
// Disconnected. The log and the logging flag are left untouched; the
// latest sample is cleared only when configured. Idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	tr := s.tr
	cancel := s.cancel
	done := s.drainDone
	s.tr = nil
	s.cancel = nil
	s.drainDone = nil
	s.state = StateDisconnected
	if s.clearLatestOnDisconnect {
		s.latest = telemetry.Sample{}
		s.hasLatest = false
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	var err error
	if tr != nil {
		err = tr.Disconnect()

		s.mu.Lock()
		s.lastStats = tr.Stats()
		s.mu.Unlock()
	}

	s.notifyStatus()
	s.logger.Info("disconnected")

	if err != nil {
		return fmt.Errorf("session: disconnect: %w", err)
	}
	return nil
}

// StartLogging begins appending subsequent samples to the log. The
// sample already on display is not logged retroactively.
func (s *Session) StartLogging() { s.setLogging(true) }

// StopLogging stops appending without clearing what was logged.
func (s *Session) StopLogging() { s.setLogging(false) }

func (s *Session) setLogging(active bool) {
	s.mu.Lock()
	changed := s.loggingActive != active
	s.loggingActive = active
	s.mu.Unlock()

	if changed {
		s.notifyStatus()
		s.logger.Info("logging toggled", slog.Bool("active", active))
	}
}

// Reset clears the log and the latest sample and switches logging off.
// The connection state is not touched.
func (s *Session) Reset() {
	s.mu.Lock()
	s.log.Clear()
	s.latest = telemetry.Sample{}
	s.hasLatest = false
	s.loggingActive = false
	s.mu.Unlock()

	s.notifyStatus()
	s.logger.Info("session reset")
}

// SendCommand forwards a fire-and-forget command string to the device.
func (s *Session) SendCommand(ctx context.Context, value string) error {
	s.mu.Lock()
	tr := s.tr
	state := s.state
	s.mu.Unlock()

	if state != StateConnected || tr == nil {
		return ErrNotConnected
	}
	cmd, ok := tr.(transport.Commander)
	if !ok {
		return ErrCommandUnsupported
	}

	if err := cmd.Command(ctx, value); err != nil {
		return fmt.Errorf("session: sending command: %w", err)
	}
	s.logger.Info("command sent", slog.String("value", value))
	return nil
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoggingActive reports whether samples are being logged.
func (s *Session) LoggingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggingActive
}

// Latest returns the most recent sample, when one exists.
func (s *Session) Latest() (telemetry.Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// LogLen returns the number of logged samples.
func (s *Session) LogLen() int {
	return s.log.Len()
}

// LogSnapshot returns a copy of the log in insertion order.
func (s *Session) LogSnapshot() []telemetry.Sample {
	return s.log.Snapshot()
}

// Stats returns the stream counters: live from the active transport,
// otherwise the last connection's final tally.
func (s *Session) Stats() transport.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr != nil {
		return s.tr.Stats()
	}
	return s.lastStats
}

// Status returns a snapshot for the dashboard.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	status := Status{
		State:         s.state,
		LoggingActive: s.loggingActive,
		LogLength:     s.log.Len(),
		Stats:         s.lastStats,
	}
	if s.tr != nil {
		status.Transport = s.tr.Kind()
		status.Stats = s.tr.Stats()
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// drain moves samples from the transport into the session until the
// connection is torn down. Samples tagged with a stale generation are
// ignored: a response in flight at the moment of disconnect must not
// resurface in the next connection's state.
func (s *Session) drain(ctx context.Context, gen uint64, samples <-chan telemetry.Sample, streamErrs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-streamErrs:
			if !ok {
				streamErrs = nil // stream ended; keep draining until disconnect
				continue
			}
			if err != nil {
				s.recordStreamError(gen, err)
			}

		case sample := <-samples:
			s.ingest(gen, sample)
		}
	}
}

func (s *Session) ingest(gen uint64, sample telemetry.Sample) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateConnected {
		s.mu.Unlock()
		s.logger.Debug("ignoring stale sample")
		return
	}

	s.latest = sample
	s.hasLatest = true
	logged := false
	if s.loggingActive {
		s.log.Append(sample)
		logged = true
	}
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnSample(sample, logged)
	}
}

// recordStreamError notes a mid-session transport failure. The session
// stays nominally Connected: there is no automatic reconnect, recovery
// is the user's disconnect/connect.
func (s *Session) recordStreamError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Error("transport stream failed", slog.String("error", err.Error()))
	s.notifyStatus()
}

func (s *Session) notifyStatus() {
	s.mu.Lock()
	status := s.statusLocked()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnStatus(status)
	}
}
