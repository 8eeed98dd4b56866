package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scriptedProber returns the scripted observations in order, repeating the
// last one.
func scriptedProber(observations ...bool) Prober {
	i := 0
	var mu sync.Mutex
	return func(context.Context) bool {
		mu.Lock()
		defer mu.Unlock()
		obs := observations[i]
		if i < len(observations)-1 {
			i++
		}
		return obs
	}
}

func TestMonitor_StartsOnline(t *testing.T) {
	m := NewMonitor(scriptedProber(true), time.Minute)
	assert.True(t, m.Online())
}

func TestMonitor_RecoveryOnlyAfterObservedOffline(t *testing.T) {
	ctx := context.Background()
	recoveries := 0

	m := NewMonitor(scriptedProber(true, false, true, true), time.Minute)
	m.OnRecover(func(context.Context) { recoveries++ })

	m.tick(ctx) // online, no transition
	assert.True(t, m.Online())
	assert.Equal(t, 0, recoveries)

	m.tick(ctx) // goes offline
	assert.False(t, m.Online())
	assert.Equal(t, 0, recoveries, "offline transition is log-only")

	m.tick(ctx) // recovers
	assert.True(t, m.Online())
	assert.Equal(t, 1, recoveries)

	m.tick(ctx) // stays online
	assert.Equal(t, 1, recoveries, "no duplicate recovery while staying online")
}

func TestMonitor_FlapWithinOneWindowNoDuplicateRecovery(t *testing.T) {
	// The monitor starts assumed-online; a first observation of online must
	// not fire recovery since no offline state was ever observed.
	ctx := context.Background()
	recoveries := 0

	m := NewMonitor(scriptedProber(true), time.Minute)
	m.OnRecover(func(context.Context) { recoveries++ })

	m.tick(ctx)
	m.tick(ctx)
	assert.Equal(t, 0, recoveries)
}

func TestMonitor_OverlappingTicksSkipped(t *testing.T) {
	ctx := context.Background()
	probeStarted := make(chan struct{})
	probeRelease := make(chan struct{})
	probes := 0
	var mu sync.Mutex

	m := NewMonitor(func(context.Context) bool {
		mu.Lock()
		probes++
		mu.Unlock()
		close(probeStarted)
		<-probeRelease
		return true
	}, time.Minute)

	go m.tick(ctx)
	<-probeStarted

	// A second tick while the first probe is still running must not probe.
	m.tick(ctx)
	close(probeRelease)

	// Wait for the first tick to finish.
	assert.Eventually(t, func() bool {
		return !m.ticking.Load()
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, probes)
}

func TestHTTPProber(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	ctx := context.Background()
	assert.True(t, HTTPProber(ok.URL, time.Second)(ctx))
	assert.False(t, HTTPProber(failing.URL, time.Second)(ctx))
	assert.False(t, HTTPProber("http://127.0.0.1:1", time.Second)(ctx), "unreachable host")
}

// stateRecorder captures connectivity gauge updates.
type stateRecorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *stateRecorder) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, online)
}

func (r *stateRecorder) recorded() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool{}, r.states...)
}

func TestMonitor_MetricsTrackConnectivity(t *testing.T) {
	ctx := context.Background()
	m := NewMonitor(scriptedProber(false, true), time.Minute)
	rec := &stateRecorder{}
	m.SetMetrics(rec)

	m.tick(ctx) // goes offline
	m.tick(ctx) // recovers

	// Initial assumed-online push, then one update per observation.
	assert.Equal(t, []bool{true, false, true}, rec.recorded())
}

func TestMonitor_StartStop(t *testing.T) {
	m := NewMonitor(scriptedProber(true), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	m.Stop()
	// Stop is idempotent.
	m.Stop()
}
