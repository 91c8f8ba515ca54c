package bootstrap

import (
	"sync"
	"time"
)

// Metrics tracks run-level counters for the closing summary log line.
type Metrics struct {
	fetches  int64
	failures int64
	duration time.Duration
	mu       sync.RWMutex
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordFetch records one completed network fetch.
func (m *Metrics) RecordFetch() {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()
}

// RecordFailure records one per-script failure or error.
func (m *Metrics) RecordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// RecordDuration records the total run duration.
func (m *Metrics) RecordDuration(d time.Duration) {
	m.mu.Lock()
	m.duration = d
	m.mu.Unlock()
}

// GetStats returns current counters.
func (m *Metrics) GetStats() (int64, int64, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches, m.failures, m.duration
}
