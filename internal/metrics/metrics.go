// Package metrics defines the Prometheus collectors for the word cloud
// service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wordcloud"

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the image cache and pipeline collectors. A nil *Metrics is
// valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	Coalesced     prometheus.Counter
	Evictions     prometheus.Counter
	Invalidations prometheus.Counter
	Entries       prometheus.Gauge
	InFlight      prometheus.Gauge

	Generations        *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	OptimizeFallbacks  prometheus.Counter
	WordsDropped       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Image cache lookups served from memory.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Image cache lookups that found no entry.",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "coalesced_total",
			Help: "Requests that attached to an in-flight generation.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Entries evicted by the LRU policy.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "invalidations_total",
			Help: "Entries removed by explicit invalidation.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "entries",
			Help: "Images currently cached.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "inflight_generations",
			Help: "Generations currently running.",
		}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "generations_total",
			Help: "Completed generations by outcome.",
		}, []string{"outcome"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "generation_duration_seconds",
			Help:    "Wall time of one generation, fetch to compressed PNG.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		OptimizeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "optimize_fallbacks_total",
			Help: "Generations that served the unoptimized PNG.",
		}),
		WordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "words_dropped_total",
			Help: "Words the layout could not place.",
		}),
	}
	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.Coalesced, m.Evictions, m.Invalidations,
		m.Entries, m.InFlight, m.Generations, m.GenerationDuration,
		m.OptimizeFallbacks, m.WordsDropped,
	)
	return m
}

func (m *Metrics) Hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) Miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) Attach() {
	if m != nil {
		m.Coalesced.Inc()
	}
}

func (m *Metrics) Evict() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *Metrics) Invalidate() {
	if m != nil {
		m.Invalidations.Inc()
	}
}

// SetSizes records the number of cached entries and running generations.
func (m *Metrics) SetSizes(entries, inflight int) {
	if m != nil {
		m.Entries.Set(float64(entries))
		m.InFlight.Set(float64(inflight))
	}
}

// Generated records one finished generation.
func (m *Metrics) Generated(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Generations.WithLabelValues(outcome).Inc()
	m.GenerationDuration.Observe(d.Seconds())
}

func (m *Metrics) OptimizeFallback() {
	if m != nil {
		m.OptimizeFallbacks.Inc()
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil && n > 0 {
		m.WordsDropped.Add(float64(n))
	}
}
