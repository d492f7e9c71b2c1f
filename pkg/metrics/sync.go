package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "posync"

// SyncMetrics records sync pass, queue depth and cache refresh telemetry.
type SyncMetrics struct {
	passDuration *prometheus.HistogramVec
	items        *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	cacheRefresh *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_pass_duration_seconds",
		Help:      "Duration of completed sync passes in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_items_total",
		Help:      "Queue items processed by sync passes.",
	}, []string{"queue", "outcome"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_passes_skipped_total",
		Help:      "Sync passes that returned without running.",
	}, []string{"reason"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Items currently held in each local queue.",
	}, []string{"queue"})
	cacheRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_refresh_total",
		Help:      "Reference cache refresh attempts.",
	}, []string{"entity", "outcome"})
	reg.MustRegister(passDuration, items, skipped, queueDepth, cacheRefresh)
	return &SyncMetrics{
		passDuration: passDuration,
		items:        items,
		skipped:      skipped,
		queueDepth:   queueDepth,
		cacheRefresh: cacheRefresh,
	}
}

// ObservePass records the duration of a pass that ran to completion.
func (m *SyncMetrics) ObservePass(duration time.Duration, clean bool) {
	if m == nil || m.passDuration == nil {
		return
	}
	outcome := "clean"
	if !clean {
		outcome = "with_errors"
	}
	m.passDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddItems increments the processed item counter.
func (m *SyncMetrics) AddItems(queue, outcome string, n int) {
	if m == nil || m.items == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(normalizeLabel(queue), normalizeLabel(outcome)).Add(float64(n))
}

// IncSkipped counts a pass that was short-circuited.
func (m *SyncMetrics) IncSkipped(reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

// SetQueueDepth publishes the current size of a local queue.
func (m *SyncMetrics) SetQueueDepth(queue string, n int64) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queue)).Set(float64(n))
}

// IncCacheRefresh counts a reference cache refresh attempt.
func (m *SyncMetrics) IncCacheRefresh(entity string, ok bool) {
	if m == nil || m.cacheRefresh == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.cacheRefresh.WithLabelValues(normalizeLabel(entity), outcome).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
