package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicpulse/smartcache/pkg/observability"
)

// countingMetrics records counter increments and delegates everything else
// to the no-op client
type countingMetrics struct {
	observability.MetricsClient

	mu     sync.Mutex
	counts map[string]float64
	labels map[string]map[string]string
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		MetricsClient: observability.NewNoOpMetricsClient(),
		counts:        make(map[string]float64),
		labels:        make(map[string]map[string]string),
	}
}

func (m *countingMetrics) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name] += value
	m.labels[name] = labels
}

func (m *countingMetrics) count(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func TestRecoverMiddleware_SwallowsPanic(t *testing.T) {
	wrap := RecoverMiddleware(observability.NewNoopLogger(), "test_op")

	ran := false
	require.NotPanics(t, func() {
		wrap(func() {
			ran = true
			panic("boom")
		})
	})
	assert.True(t, ran)

	// The wrapper stays usable after a recovered panic
	calls := 0
	wrap(func() { calls++ })
	assert.Equal(t, 1, calls)
}

func TestRecoverWithMetrics_CountsPanic(t *testing.T) {
	metrics := newCountingMetrics()
	wrap := RecoverWithMetrics(observability.NewNoopLogger(), metrics, "sweep")

	require.NotPanics(t, func() {
		wrap(func() { panic("boom") })
	})

	assert.Equal(t, float64(1), metrics.count("cache_panic_recovered_total"))
	assert.Equal(t, "sweep", metrics.labels["cache_panic_recovered_total"]["operation"])

	// A clean run records nothing
	wrap(func() {})
	assert.Equal(t, float64(1), metrics.count("cache_panic_recovered_total"))
}

func TestSafeGo_SurvivesPanic(t *testing.T) {
	done := make(chan struct{})
	SafeGo(observability.NewNoopLogger(), "background", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
	// Give the deferred recover a moment; a propagating panic would have
	// crashed the test binary by now
	time.Sleep(10 * time.Millisecond)
}
