package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Hit()
	m.Hit()
	m.Miss()
	m.Attach()
	m.Evict()
	m.Invalidate()
	m.SetSizes(3, 1)
	m.Generated(time.Second, nil)
	m.Generated(time.Second, errors.New("boom"))
	m.OptimizeFallback()
	m.Dropped(4)
	m.Dropped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Coalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invalidations))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Entries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OptimizeFallbacks))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.WordsDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Hit()
		m.Miss()
		m.Attach()
		m.Evict()
		m.Invalidate()
		m.SetSizes(1, 1)
		m.Generated(time.Millisecond, nil)
		m.OptimizeFallback()
		m.Dropped(1)
	})
}
