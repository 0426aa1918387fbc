// Package blenotify implements the BLE transport: scan by name prefix,
// GATT connect, subscribe to the telemetry characteristic, one sample
// per notification.
package blenotify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
	"github.com/osadchyi/cansat-ground/internal/transport"
)

// Kind identifies this adapter.
const Kind = "ble-notify"

// frameBacklog buffers notifications between the radio callback and the
// decode loop. Overflow drops the frame rather than stalling the radio.
const frameBacklog = 16

var (
	// ErrDeviceNotFound is returned when no advertisement matches the
	// configured name prefix within the scan window.
	ErrDeviceNotFound = errors.New("blenotify: no matching device found")

	// ErrServiceNotFound is returned when the telemetry service is
	// absent from the connected device.
	ErrServiceNotFound = errors.New("blenotify: telemetry service not found")

	// ErrCharacteristicNotFound is returned when the notify
	// characteristic is absent from the telemetry service.
	ErrCharacteristicNotFound = errors.New("blenotify: telemetry characteristic not found")
)

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) func(t *Transport) {
	return func(t *Transport) {
		t.logger = logger.With(slog.String("transport", Kind))
	}
}

// Transport streams CanSat telemetry from BLE notifications.
type Transport struct {
	config  Config
	backend backend

	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	sub         subscription

	counters transport.Counters
	logger   *slog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New creates a BLE notification transport.
func New(config Config, options ...func(t *Transport)) (*Transport, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	t := Transport{
		config:  config,
		backend: newCentral(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&t)
	}

	return &t, nil
}

// Connect scans, connects and subscribes, then starts the decode loop.
func (t *Transport) Connect(ctx context.Context, out chan<- telemetry.Sample) (<-chan error, error) {
	if !t.isStreaming.CompareAndSwap(false, true) {
		return nil, transport.ErrAlreadyConnected
	}

	// The cancel func must exist before the scan so a concurrent
	// Disconnect can abort it.
	ctx, t.cancel = context.WithCancel(ctx)

	// Notification payloads are only valid during the callback, and a
	// slow consumer must not stall the radio. Copy and hand off.
	frames := make(chan []byte, frameBacklog)
	sub, err := t.backend.subscribe(ctx, t.config, func(payload []byte) {
		frame := make([]byte, len(payload))
		copy(frame, payload)

		select {
		case frames <- frame:
		default:
			t.counters.MarkDropped()
		}
	})
	if err != nil {
		t.cancel()
		t.isStreaming.Store(false) // Reset running state on error
		return nil, err
	}

	t.sub = sub
	t.logger.Info("subscribed to telemetry notifications",
		slog.String("device", sub.DeviceName()),
		slog.String("address", sub.Address()),
	)

	stopped := make(chan error, 1)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(stopped)

		t.consume(ctx, frames, out)
	}()

	return stopped, nil
}

// Disconnect unsubscribes and drops the link. Idempotent.
func (t *Transport) Disconnect() error {
	if !t.isStreaming.Load() {
		return nil // already stopped
	}

	t.cancel()
	t.wg.Wait()

	var err error
	if t.sub != nil { // Connect may still be inside the scan
		err = t.sub.Close()
		t.sub = nil
	}
	t.isStreaming.Store(false)

	if err != nil {
		t.logger.Warn("closing subscription", slog.String("error", err.Error()))
	}
	return err
}

func (t *Transport) Kind() string { return Kind }

func (t *Transport) Stats() transport.Stats { return t.counters.Snapshot() }

// consume decodes notification frames into samples. An undecodable
// frame is counted, logged and dropped; the stream continues.
func (t *Transport) consume(ctx context.Context, frames <-chan []byte, out chan<- telemetry.Sample) {
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("notification stream stopped")
			return

		case frame := <-frames:
			sample, err := telemetry.ParseFrame(frame, time.Now())
			if err != nil {
				t.counters.MarkDropped()
				t.logger.Warn("dropping undecodable notification", slog.String("error", err.Error()))
				continue
			}

			select {
			case out <- sample:
				t.counters.MarkReceived()
			case <-ctx.Done():
				t.logger.Info("notification stream stopped")
				return
			}
		}
	}
}
