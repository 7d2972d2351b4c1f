package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the analytics module.
type Metrics struct {
	ViewsRecorded  *prometheus.CounterVec
	ViewsDeduped   *prometheus.CounterVec
	SyncFlushes    prometheus.Counter
	SyncFlushViews prometheus.Counter
}

// New creates and registers all analytics metrics.
func New() *Metrics {
	return &Metrics{
		ViewsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletdrop_analytics_views_recorded_total",
			Help: "Total number of view events recorded",
		}, []string{"content_type"}),
		ViewsDeduped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletdrop_analytics_views_deduped_total",
			Help: "Total number of view events skipped as self-views or duplicates",
		}, []string{"content_type"}),
		SyncFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulletdrop_analytics_sync_flushes_total",
			Help: "Total number of view counter flushes",
		}),
		SyncFlushViews: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulletdrop_analytics_sync_flush_views_total",
			Help: "Total number of buffered views flushed to the store",
		}),
	}
}
