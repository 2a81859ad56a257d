package gateway

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// LivenessMonitor periodically pings every open connection and evicts any
// that failed to answer the previous heartbeat. A silent connection is
// dropped within at most two intervals of going quiet, never sooner than one.
type LivenessMonitor struct {
	gateway  *Gateway
	clock    clock.Clock
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewLivenessMonitor(g *Gateway, clk clock.Clock, interval time.Duration) *LivenessMonitor {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LivenessMonitor{
		gateway:  g,
		clock:    clk,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run blocks, sweeping on every tick until Stop is called.
func (m *LivenessMonitor) Run() {
	defer close(m.done)
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	slog.Info("Liveness monitor started", "interval", m.interval)
	for {
		select {
		case <-ticker.C:
			m.gateway.SweepLiveness()
		case <-m.stop:
			slog.Info("Liveness monitor stopped")
			return
		}
	}
}

// Stop terminates the monitor and waits for the sweep loop to exit.
func (m *LivenessMonitor) Stop() {
	close(m.stop)
	<-m.done
}
