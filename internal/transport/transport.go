// Package transport defines the streaming abstraction between a CanSat
// device link and the telemetry session. Concrete adapters live in the
// httppoll and blenotify subpackages.
package transport

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// ErrAlreadyConnected is returned by Connect when the adapter already
// has a live stream.
var ErrAlreadyConnected = errors.New("transport: already connected")

// Transport streams telemetry samples from a single device connection.
//
// Connect performs the adapter handshake and, on success, starts the
// stream: samples are delivered to out until Disconnect is called or
// the underlying channel fails. The returned channel reports at most
// one terminal stream error and is closed when the stream ends. The
// synchronous error covers the handshake only; a handshake failure
// leaves the adapter disconnected.
//
// Adapters do not reconnect on their own. A failed poll or an
// undecodable frame is a soft error: it is counted, logged and skipped,
// and the stream continues.
type Transport interface {
	Connect(ctx context.Context, out chan<- telemetry.Sample) (<-chan error, error)

	// Disconnect stops the stream and releases the underlying channel.
	// It is idempotent and safe to call on a never-connected adapter.
	Disconnect() error

	// Kind identifies the adapter, e.g. "http-poll" or "ble-notify".
	Kind() string

	// Stats returns a snapshot of the stream counters.
	Stats() Stats
}

// Commander is implemented by adapters that can carry fire-and-forget
// command strings to the device. The device's response, if any, is
// discarded.
type Commander interface {
	Command(ctx context.Context, value string) error
}

// Stats holds cumulative stream counters for one adapter instance.
type Stats struct {
	Received uint64 `json:"received"` // samples delivered downstream
	Dropped  uint64 `json:"dropped"`  // frames lost to poll or decode failures
}

// Counters is the concurrency-safe tally behind Stats, shared by the
// adapter implementations.
type Counters struct {
	received atomic.Uint64
	dropped  atomic.Uint64
}

// MarkReceived records one delivered sample.
func (c *Counters) MarkReceived() { c.received.Add(1) }

// MarkDropped records one lost frame.
func (c *Counters) MarkDropped() { c.dropped.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Received: c.received.Load(),
		Dropped:  c.dropped.Load(),
	}
}
