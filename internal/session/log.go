package session

import (
	"sync"

	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// Log is the in-memory, insertion-ordered accumulation of samples.
// It only ever grows, apart from Clear. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	samples []telemetry.Sample
}

func NewLog() *Log {
	return &Log{}
}

// Append adds a sample at the end of the log.
func (l *Log) Append(sample telemetry.Sample) {
	l.mu.Lock()
	l.samples = append(l.samples, sample)
	l.mu.Unlock()
}

// Len returns the number of logged samples.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Snapshot returns a copy of the log in insertion order.
func (l *Log) Snapshot() []telemetry.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return nil
	}
	samples := make([]telemetry.Sample, len(l.samples))
	copy(samples, l.samples)
	return samples
}

// Clear discards all logged samples.
func (l *Log) Clear() {
	l.mu.Lock()
	l.samples = nil
	l.mu.Unlock()
}
