// Package metrics provides Prometheus collectors for table scans and
// connection recovery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "movies"

// Collector groups the scan and retry metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	scans        *prometheus.CounterVec
	rowsVisited  *prometheus.CounterVec
	rowsMatched  *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	acquisitions prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "scans_total",
			Help:      "Table scans started, by repository operation.",
		}, []string{"op"}),
		rowsVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "scan_rows_visited_total",
			Help:      "Rows read from the table, by repository operation.",
		}, []string{"op"}),
		rowsMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "scan_rows_matched_total",
			Help:      "Rows kept after key filtering, by repository operation.",
		}, []string{"op"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one scan attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "retries_total",
			Help:      "Attempts retried after a transient connection error.",
		}, []string{"op"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "connection_exhausted_total",
			Help:      "Operations that failed after all retries.",
		}, []string{"op"}),
		acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "table_acquisitions_total",
			Help:      "Times the table handle opened a new connection.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.scans, c.rowsVisited, c.rowsMatched, c.scanDuration, c.retries, c.exhausted, c.acquisitions,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveScan records one completed scan attempt.
func (c *Collector) ObserveScan(op string, visited, matched int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.scans.WithLabelValues(op).Inc()
	c.rowsVisited.WithLabelValues(op).Add(float64(visited))
	c.rowsMatched.WithLabelValues(op).Add(float64(matched))
	c.scanDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Retry records a retried attempt.
func (c *Collector) Retry(op string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(op).Inc()
}

// Exhausted records an operation that ran out of attempts.
func (c *Collector) Exhausted(op string) {
	if c == nil {
		return
	}
	c.exhausted.WithLabelValues(op).Inc()
}

// TableAcquired implements wide.AcquireObserver.
func (c *Collector) TableAcquired() {
	if c == nil {
		return
	}
	c.acquisitions.Inc()
}
