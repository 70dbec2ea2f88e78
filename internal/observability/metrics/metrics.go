// Package metrics provides Prometheus metrics for the fill engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	OrdersResolved   prometheus.Counter
	OrdersFailed     *prometheus.CounterVec
	TriggerRows      prometheus.Counter
	ReportRows       *prometheus.CounterVec
	RetriesSwept     prometheus.Counter
	BatchDuration    prometheus.Histogram
	ExpiringFlags    prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		OrdersResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_orders_resolved_total",
			Help: "Total orders resolved into fill items",
		}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fill_orders_failed_total",
			Help: "Total order resolutions failed, by reason",
		}, []string{"reason"}),
		TriggerRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_trigger_rows_total",
			Help: "Total rows written to the WellDyne trigger file",
		}),
		ReportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fill_report_rows_total",
			Help: "Total rows routed to pharmacy email reports",
		}, []string{"pharmacy"}),
		RetriesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_retries_swept_total",
			Help: "Total ready retry records picked up by a sweep",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fill_batch_duration_seconds",
			Help:    "Fill batch run duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ExpiringFlags: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_expiring_flags_total",
			Help: "Total expiring-prescription flags recorded",
		}),
		UploadsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_uploads_succeeded_total",
			Help: "Total batch files uploaded",
		}),
		UploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fill_uploads_failed_total",
			Help: "Total batch file upload failures",
		}),
	}

	prometheus.MustRegister(
		m.OrdersResolved,
		m.OrdersFailed,
		m.TriggerRows,
		m.ReportRows,
		m.RetriesSwept,
		m.BatchDuration,
		m.ExpiringFlags,
		m.UploadsSucceeded,
		m.UploadsFailed,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
