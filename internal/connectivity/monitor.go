// Package connectivity tracks whether the remote store is reachable and
// notifies listeners on every offline/online transition.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/scheduler"
)

// ProbeJob is the scheduler job name used by Schedule.
const ProbeJob = "connectivity-probe"

// Probe reports whether the remote is reachable.
type Probe func(ctx context.Context) bool

// TCPProbe returns a Probe that dials address with the given timeout.
func TCPProbe(address string, timeout time.Duration) Probe {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Listener receives the new offline state after a transition.
type Listener func(offline bool)

// Monitor holds the current connectivity state. Listeners are called once per
// transition, in registration order, and never for a repeated state.
type Monitor struct {
	// notifyMu serializes transitions so listeners observe them in order.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	offline   bool
	listeners []Listener
	probe     Probe
	logger    logging.Logger
}

// NewMonitor creates a monitor in the given initial state. probe may be nil
// when the state is only driven through SetOffline.
func NewMonitor(probe Probe, initialOffline bool, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Monitor{offline: initialOffline, probe: probe, logger: logger}
}

// IsOffline returns the current state.
func (m *Monitor) IsOffline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// OnChange registers l. Listeners must not call SetOffline or Check.
func (m *Monitor) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetOffline forces the state. It reports whether a transition happened.
func (m *Monitor) SetOffline(offline bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return false
	}
	m.offline = offline
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", logging.F(logging.FieldOffline, offline))
	for _, l := range listeners {
		l(offline)
	}
	return true
}

// Check runs the probe once and applies the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return false
	}
	return m.SetOffline(!m.probe(ctx))
}

// Schedule polls the probe on s every interval.
func (m *Monitor) Schedule(s *scheduler.Scheduler, interval time.Duration) error {
	return s.Every(ProbeJob, interval, func(ctx context.Context) {
		m.Check(ctx)
	})
}
