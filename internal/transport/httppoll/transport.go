// Package httppoll implements the HTTP pull transport: a /connect
// handshake followed by fixed-interval /data polls, one sample per
// successful poll.
package httppoll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
	"github.com/osadchyi/cansat-ground/internal/transport"
)

// Kind identifies this adapter.
const Kind = "http-poll"

// ErrRejected is returned when /connect answers without a true
// connected flag.
var ErrRejected = errors.New("httppoll: device rejected connection")

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) func(t *Transport) {
	return func(t *Transport) {
		t.logger = logger.With(slog.String("transport", Kind))
	}
}

// WithClient sets the HTTP client, overriding the default timeout one.
func WithClient(client *http.Client) func(t *Transport) {
	return func(t *Transport) {
		t.client = client
	}
}

// Transport polls a CanSat device over HTTP.
type Transport struct {
	base   *url.URL
	config Config
	client *http.Client

	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	counters transport.Counters
	logger   *slog.Logger
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Commander = (*Transport)(nil)
)

// New creates a polling transport for the configured target.
func New(config Config, options ...func(t *Transport)) (*Transport, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base, err := config.baseURL()
	if err != nil {
		return nil, err
	}

	t := Transport{
		base:   base,
		config: config,
		client: &http.Client{Timeout: time.Duration(config.RequestTimeout)},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&t)
	}

	return &t, nil
}

// Connect performs the /connect handshake and starts the poll loop.
func (t *Transport) Connect(ctx context.Context, out chan<- telemetry.Sample) (<-chan error, error) {
	if !t.isStreaming.CompareAndSwap(false, true) {
		return nil, transport.ErrAlreadyConnected
	}

	// The cancel func must exist before the handshake so a concurrent
	// Disconnect can abort it.
	ctx, t.cancel = context.WithCancel(ctx)

	if err := t.handshake(ctx); err != nil {
		t.cancel()
		t.isStreaming.Store(false) // Reset running state on error
		return nil, err
	}

	stopped := make(chan error, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(stopped)

		t.poll(ctx, out)
	}()

	return stopped, nil
}

// Disconnect stops the poll loop. Idempotent.
func (t *Transport) Disconnect() error {
	if !t.isStreaming.Load() {
		return nil // already stopped
	}

	t.cancel()
	t.wg.Wait()
	t.isStreaming.Store(false)
	return nil
}

// Command issues a fire-and-forget GET /cmd?value=<cmd>. The response
// body is discarded.
func (t *Transport) Command(ctx context.Context, value string) error {
	query := url.Values{"value": []string{value}}
	if _, err := t.get(ctx, cmdPath, query); err != nil {
		return fmt.Errorf("httppoll: sending command: %w", err)
	}
	return nil
}

func (t *Transport) Kind() string { return Kind }

func (t *Transport) Stats() transport.Stats { return t.counters.Snapshot() }

// handshake succeeds only when /connect answers {connected: true}.
func (t *Transport) handshake(ctx context.Context) error {
	body, err := t.get(ctx, connectPath, nil)
	if err != nil {
		return fmt.Errorf("httppoll: handshake: %w", err)
	}

	var resp struct {
		Connected bool `json:"connected"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("httppoll: decoding handshake response: %w", err)
	}
	if !resp.Connected {
		return ErrRejected
	}

	return nil
}

// poll pulls /data on every tick until the context is cancelled. A
// failed or undecodable pull is counted, logged and skipped; the loop
// never terminates on its own.
func (t *Transport) poll(ctx context.Context, out chan<- telemetry.Sample) {
	ticker := time.NewTicker(time.Duration(t.config.PollInterval))
	defer ticker.Stop()

	t.logger.Info("poll loop started", slog.String("target", t.base.String()))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("poll loop stopped")
			return

		case <-ticker.C:
			sample, err := t.pullSample(ctx)
			if err != nil {
				if ctx.Err() != nil {
					t.logger.Info("poll loop stopped")
					return
				}
				t.counters.MarkDropped()
				t.logger.Warn("poll failed, skipping tick", slog.String("error", err.Error()))
				continue
			}

			select {
			case out <- sample:
				t.counters.MarkReceived()
			case <-ctx.Done():
				t.logger.Info("poll loop stopped")
				return
			}
		}
	}
}

func (t *Transport) pullSample(ctx context.Context) (telemetry.Sample, error) {
	body, err := t.get(ctx, dataPath, nil)
	if err != nil {
		return telemetry.Sample{}, err
	}

	sample, err := telemetry.ParseFrame(body, time.Now())
	if err != nil {
		return telemetry.Sample{}, err
	}

	return sample, nil
}

func (t *Transport) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := t.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("requesting %s: unexpected status %s", path, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	return body, nil
}
