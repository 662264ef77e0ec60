package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the integration's Prometheus metrics on a private registry.
type Registry struct {
	reg *prometheus.Registry

	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	fetchErrors      prometheus.Counter
	fetchDuration    prometheus.Histogram
	fetchRecords     prometheus.Gauge
	cacheSecondsLeft prometheus.Gauge
	resolutions      *prometheus.CounterVec
	failures         *prometheus.CounterVec
	polls            *prometheus.CounterVec
	pollDuration     prometheus.Histogram
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrm_diagnostics_cache_hits_total",
			Help: "Diagnostics lookups served from the cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrm_diagnostics_cache_misses_total",
			Help: "Diagnostics lookups that required an upstream fetch",
		}),
		fetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vrm_diagnostics_fetch_errors_total",
			Help: "Failed diagnostics fetches",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vrm_diagnostics_fetch_duration_seconds",
			Help:    "Duration of diagnostics fetches",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}),
		fetchRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vrm_diagnostics_records",
			Help: "Records in the last diagnostics batch",
		}),
		cacheSecondsLeft: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vrm_diagnostics_cache_seconds_left",
			Help: "Seconds until the diagnostics cache expires",
		}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrm_device_resolutions_total",
			Help: "Device updates by kind and the strategy that produced them",
		}, []string{"kind", "strategy"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrm_device_resolution_failures_total",
			Help: "Device updates where every strategy failed",
		}, []string{"kind"}),
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrm_polls_total",
			Help: "Poll cycles by result",
		}, []string{"result"}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vrm_poll_duration_seconds",
			Help:    "Duration of poll cycles",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Registry) Hit() {
	r.cacheHits.Inc()
}

func (r *Registry) Miss() {
	r.cacheMisses.Inc()
}

func (r *Registry) Fetched(elapsed time.Duration, records int) {
	r.fetchDuration.Observe(elapsed.Seconds())
	r.fetchRecords.Set(float64(records))
}

func (r *Registry) FetchFailed(error) {
	r.fetchErrors.Inc()
}

// Resolved counts a device update. An empty strategy means every strategy failed.
func (r *Registry) Resolved(kind, strategy string) {
	if strategy == "" {
		r.failures.WithLabelValues(kind).Inc()
		return
	}
	r.resolutions.WithLabelValues(kind, strategy).Inc()
}

func (r *Registry) CacheRemaining(left time.Duration) {
	r.cacheSecondsLeft.Set(left.Seconds())
}

func (r *Registry) PollCompleted(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.polls.WithLabelValues(result).Inc()
	r.pollDuration.Observe(elapsed.Seconds())
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
