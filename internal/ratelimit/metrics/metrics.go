package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the rate limiter.
type Metrics struct {
	ChecksAllowed *prometheus.CounterVec
	ChecksDenied  *prometheus.CounterVec
	BlockedHits   prometheus.Counter
	AutoBlocks    prometheus.Counter
	FailOpen      prometheus.Counter
}

// New creates and registers all rate limit metrics.
func New() *Metrics {
	return &Metrics{
		ChecksAllowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletdrop_ratelimit_checks_allowed_total",
			Help: "Total rate limit checks that allowed the request",
		}, []string{"class"}),
		ChecksDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bulletdrop_ratelimit_checks_denied_total",
			Help: "Total rate limit checks that denied the request",
		}, []string{"class"}),
		BlockedHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulletdrop_ratelimit_blocked_hits_total",
			Help: "Total requests rejected because the IP was blocked",
		}),
		AutoBlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulletdrop_ratelimit_auto_blocks_total",
			Help: "Total automatic IP blocks issued for tripping auth limits",
		}),
		FailOpen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bulletdrop_ratelimit_fail_open_total",
			Help: "Total checks skipped because the limit store was unavailable",
		}),
	}
}
