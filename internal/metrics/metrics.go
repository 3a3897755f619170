// Package metrics exposes Prometheus metrics for scans, notifications and the API.
package metrics

import (
	"time"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "listing_monitor"

// Metrics holds every collector. All Record/Set methods accept a nil receiver so
// components can run without metrics.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	ScanRunning      prometheus.Gauge
	PagesTotal       *prometheus.CounterVec
	ListingsObserved prometheus.Gauge
	ParseErrorsTotal prometheus.Counter
	ChangesTotal     *prometheus.CounterVec
	BaselineVersion  prometheus.Gauge
	BaselineListings prometheus.Gauge

	NotifyFailuresTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initScanMetrics(factory)
	m.initDeliveryMetrics(factory)
	m.initHTTPMetrics(factory)

	return m
}

func (m *Metrics) initScanMetrics(factory promauto.Factory) {
	m.ScansTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Finished scans by final status",
	}, []string{"status"})

	m.ScanDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of finished scans",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	})

	m.ScanRunning = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "running",
		Help:      "1 while a scan is running",
	})

	m.PagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "pages_total",
		Help:      "Page fetches by result",
	}, []string{"result"})

	m.ListingsObserved = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "listings_observed",
		Help:      "Listings observed by the last finished scan",
	})

	m.ParseErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "parse_errors_total",
		Help:      "Malformed listing records skipped",
	})

	m.ChangesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "changes_total",
		Help:      "Committed changes by type and category",
	}, []string{"type", "category"})

	m.BaselineVersion = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "baseline",
		Name:      "version",
		Help:      "Version of the committed baseline",
	})

	m.BaselineListings = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "baseline",
		Name:      "listings",
		Help:      "Listings held by the committed baseline",
	})
}

func (m *Metrics) initDeliveryMetrics(factory promauto.Factory) {
	m.NotifyFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Failed change set deliveries by sink",
	}, []string{"sink"})
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by method, route and status code",
	}, []string{"method", "route", "code"})

	m.HTTPRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
}

// SetRunning flips the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ScanRunning.Set(1)
		return
	}
	m.ScanRunning.Set(0)
}

// RecordPages counts fetched and failed pages.
func (m *Metrics) RecordPages(fetched, failed int) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues("ok").Add(float64(fetched))
	m.PagesTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordRun records a finished scan.
func (m *Metrics) RecordRun(run *models.ScanRun, elapsed time.Duration) {
	if m == nil || run == nil {
		return
	}
	m.ScansTotal.WithLabelValues(string(run.Status)).Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
	m.ListingsObserved.Set(float64(run.ListingsObserved))
	m.ParseErrorsTotal.Add(float64(run.ParseErrors))
}

// RecordCommit records a committed change set and the resulting baseline.
func (m *Metrics) RecordCommit(changes []models.ChangeRecord, version int64, listings int) {
	if m == nil {
		return
	}
	for _, c := range changes {
		m.ChangesTotal.WithLabelValues(string(c.ChangeType), string(c.Category)).Inc()
	}
	m.BaselineVersion.Set(float64(version))
	m.BaselineListings.Set(float64(listings))
}

// RecordNotifyFailure counts a failed delivery.
func (m *Metrics) RecordNotifyFailure(sink string) {
	if m == nil {
		return
	}
	m.NotifyFailuresTotal.WithLabelValues(sink).Inc()
}

// RecordRequest records one API request.
func (m *Metrics) RecordRequest(method, route, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
