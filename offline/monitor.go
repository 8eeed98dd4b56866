// Package offline keeps delegated work alive across connectivity loss: a
// reachability monitor detects transitions and a durable deduplicating
// queue replays tasks on recovery.
package offline

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is how often the monitor polls the reachability
// probe.
const DefaultProbeInterval = 30 * time.Second

// Prober checks external reachability. Must respect ctx and return within
// its deadline.
type Prober func(ctx context.Context) bool

// HTTPProber probes a well-known endpoint with a HEAD request. Success is
// any 2xx (or 204) within timeout.
func HTTPProber(url string, timeout time.Duration) Prober {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

// StateMetrics receives connectivity gauge updates. *metrics.Exporter
// satisfies it.
type StateMetrics interface {
	SetOnline(online bool)
}

// Monitor tracks a single online boolean from periodic probe observations.
// A false->true transition triggers the registered recovery hooks; a
// true->false transition is logged only. Recovery fires only after an
// actually observed offline state, so a flap inside one poll window never
// produces a duplicate recovery.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu          sync.Mutex
	online      bool
	lastUpAt    time.Time
	lastDownAt  time.Time
	onRecover   []func(ctx context.Context)
	metrics     StateMetrics
	ticking     atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMonitor creates a monitor. interval <= 0 uses the default. The monitor
// starts in the assumed-online state; recovery hooks fire only after an
// observed offline tick.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		online:   true,
		stopCh:   make(chan struct{}),
	}
}

// OnRecover registers a hook invoked on every false->true transition.
// Register hooks before Start.
func (m *Monitor) OnRecover(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecover = append(m.onRecover, fn)
}

// SetMetrics installs the connectivity gauge and pushes the current state.
// Call before Start.
func (m *Monitor) SetMetrics(sm StateMetrics) {
	m.mu.Lock()
	m.metrics = sm
	online := m.online
	m.mu.Unlock()
	if sm != nil {
		sm.SetOnline(online)
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start launches the recurring probe as a single background task. Stops on
// ctx cancellation or Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

// Stop terminates the monitor and waits for the background task.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// tick performs one probe observation. Ticks never overlap: if the previous
// tick is still running (slow probe), this one is skipped.
func (m *Monitor) tick(ctx context.Context) {
	if !m.ticking.CompareAndSwap(false, true) {
		slog.Debug("offline: previous probe still running, skipping tick")
		return
	}
	defer m.ticking.Store(false)

	observed := m.prober(ctx)

	m.mu.Lock()
	wasOnline := m.online
	m.online = observed
	now := time.Now()
	downSince := m.lastDownAt
	if observed {
		m.lastUpAt = now
	} else {
		m.lastDownAt = now
	}
	hooks := m.onRecover
	sm := m.metrics
	m.mu.Unlock()

	if sm != nil {
		sm.SetOnline(observed)
	}

	switch {
	case !wasOnline && observed:
		slog.Info("offline: network recovered", "down_since", downSince)
		for _, fn := range hooks {
			fn(ctx)
		}
	case wasOnline && !observed:
		// Transition to offline is log-only; queueing happens when the
		// next dispatch attempt consults Online().
		slog.Warn("offline: network unreachable")
	}
}
