// ABOUTME: Network status monitor with flap debouncing
// ABOUTME: Polls a reachability probe and publishes stabilized online/offline transitions
package netmon

import (
	"context"
	"net"
	"sync"
	"time"
)

// Event is one connectivity transition. Events are published only after the
// new state has held for the stabilization window.
type Event struct {
	Online bool
	At     time.Time
}

// Probe reports whether the backend currently looks reachable. Probes must
// respect the context deadline and never panic.
type Probe func(ctx context.Context) bool

// DialProbe returns a probe that attempts a TCP connection to addr
// (host:port). This is the default reachability check.
func DialProbe(addr string) Probe {
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

const (
	defaultInterval      = 2 * time.Second
	defaultStabilization = 1500 * time.Millisecond
	probeTimeout         = 3 * time.Second

	// Subscriber channels are buffered; sends never block the monitor. A
	// subscriber that falls this far behind loses intermediate transitions,
	// which is fine: only the latest state matters.
	subscriberBuffer = 16
)

// Monitor polls connectivity and notifies subscribers of debounced
// transitions. It cannot fail and never blocks; a stopped monitor can be
// restarted.
type Monitor struct {
	probe         Probe
	interval      time.Duration
	stabilization time.Duration

	mu          sync.Mutex
	online      bool
	subscribers []chan Event
	cancel      context.CancelFunc
	done        chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithStabilization sets the window a new state must hold before it is
// reported.
func WithStabilization(d time.Duration) Option {
	return func(m *Monitor) { m.stabilization = d }
}

// NewMonitor creates a monitor around the given probe.
func NewMonitor(probe Probe, opts ...Option) *Monitor {
	m := &Monitor{
		probe:         probe,
		interval:      defaultInterval,
		stabilization: defaultStabilization,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline returns the current debounced connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel of connectivity transitions. The channel is
// closed when the monitor stops.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Start begins polling. The initial state is probed immediately without
// debounce so callers see a sensible state right away. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	probeCtx, probeCancel := context.WithTimeout(ctx, probeTimeout)
	m.online = m.probe(probeCtx)
	probeCancel()
	done := m.done
	m.mu.Unlock()

	go m.loop(ctx, done)
}

// Stop halts polling and closes subscriber channels. The monitor can be
// started again afterwards; new subscriptions are needed after a restart.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.cancel = nil
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// candidate tracks an observed state that differs from the reported one;
	// it is committed only after holding for the stabilization window.
	var candidate bool
	var candidateSince time.Time
	candidateActive := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		observed := m.probe(probeCtx)
		cancel()

		m.mu.Lock()
		reported := m.online
		m.mu.Unlock()

		now := time.Now()
		switch {
		case observed == reported:
			// Flap back to the reported state resets the debounce clock.
			candidateActive = false
		case !candidateActive || candidate != observed:
			candidate = observed
			candidateSince = now
			candidateActive = true
		case now.Sub(candidateSince) >= m.stabilization:
			candidateActive = false
			m.publish(Event{Online: observed, At: now})
		}
	}
}

func (m *Monitor) publish(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = event.Online
	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
