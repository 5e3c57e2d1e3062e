// Package metrics exposes Prometheus counters for photo sync runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements service.Metrics and flickr.Recorder.
type Collector struct {
	runs           *prometheus.CounterVec
	photosAdded    prometheus.Counter
	detailFailures prometheus.Counter
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photosync_runs_total",
			Help: "Sync runs by outcome.",
		}, []string{"outcome"}),
		photosAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photosync_photos_added_total",
			Help: "Photos inserted by sync runs.",
		}),
		detailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photosync_detail_failures_total",
			Help: "Photo detail pages that could not be fetched or read.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photosync_http_status_total",
			Help: "Upstream responses by HTTP status code.",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photosync_fetch_latency_seconds",
			Help:    "Upstream page fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.runs,
		c.photosAdded,
		c.detailFailures,
		c.httpStatus,
		c.fetchLatency,
	)

	return c
}

func (c *Collector) RecordSyncRun(outcome string) {
	c.runs.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordPhotosAdded(count int) {
	c.photosAdded.Add(float64(count))
}

func (c *Collector) RecordDetailFailures(count int) {
	c.detailFailures.Add(float64(count))
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler serves the gatherer's metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
