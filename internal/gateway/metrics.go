package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// emaAlpha weights the dispatch latency moving average. An exponential
// moving average is used instead of a two-sample running average so old
// samples decay smoothly.
const emaAlpha = 0.2

// Metrics tracks gateway throughput counters and dispatch latency.
type Metrics struct {
	Connections      atomic.Uint64
	Disconnections   atomic.Uint64
	MessagesReceived atomic.Uint64
	MessagesSent     atomic.Uint64
	Broadcasts       atomic.Uint64
	Errors           atomic.Uint64
	RateLimited      atomic.Uint64

	mu          sync.Mutex
	avgResponse float64
	samples     uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveDispatch folds one dispatch duration into the latency average.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	m.mu.Lock()
	if m.samples == 0 {
		m.avgResponse = ms
	} else {
		m.avgResponse = emaAlpha*ms + (1-emaAlpha)*m.avgResponse
	}
	m.samples++
	m.mu.Unlock()
}

// AvgResponseMillis returns the smoothed dispatch latency in milliseconds.
func (m *Metrics) AvgResponseMillis() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avgResponse
}

// Snapshot returns the counters in a wire-friendly shape.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"connections":      m.Connections.Load(),
		"disconnections":   m.Disconnections.Load(),
		"messagesReceived": m.MessagesReceived.Load(),
		"messagesSent":     m.MessagesSent.Load(),
		"broadcasts":       m.Broadcasts.Load(),
		"errors":           m.Errors.Load(),
		"rateLimited":      m.RateLimited.Load(),
		"avgResponseMs":    m.AvgResponseMillis(),
	}
}
