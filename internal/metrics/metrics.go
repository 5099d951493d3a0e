package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Market data
	priceFetchesTotal   *prometheus.CounterVec
	priceFetchDuration  *prometheus.HistogramVec
	priceFetchRetries   *prometheus.CounterVec
	priceCacheLookups   *prometheus.CounterVec
	priceFallbacksTotal *prometheus.CounterVec

	// Orchestration
	submissionsTotal   *prometheus.CounterVec
	approvalsTotal     *prometheus.CounterVec
	confirmationWait   *prometheus.HistogramVec
	guardChecksTotal   *prometheus.CounterVec
	ledgerRecords      prometheus.Gauge
	ledgerEventsTotal  *prometheus.CounterVec
	notifyPublishTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		priceFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_price_fetches_total",
				Help: "Total number of market-data requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		priceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapper_price_fetch_duration_seconds",
				Help:    "Duration of market-data requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),
		priceFetchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_price_fetch_retries_total",
				Help: "Total number of market-data retry attempts",
			},
			[]string{"endpoint"},
		),
		priceCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_price_cache_lookups_total",
				Help: "Price cache lookups by result (fresh, stale, miss)",
			},
			[]string{"result"},
		),
		priceFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_price_fallbacks_total",
				Help: "Prices served after a failed refresh, by source (stale, zero)",
			},
			[]string{"source"},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_submissions_total",
				Help: "Submitted operations by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		approvalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_approvals_total",
				Help: "Token approvals by outcome (skipped, approved, failed)",
			},
			[]string{"outcome"},
		),
		confirmationWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapper_confirmation_wait_seconds",
				Help:    "Time from submission to receipt",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"type", "status"},
		),
		guardChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_guard_checks_total",
				Help: "Connection and network checks by result kind",
			},
			[]string{"result"},
		),
		ledgerRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swapper_ledger_records",
				Help: "Number of records held by the transaction ledger",
			},
		),
		ledgerEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_ledger_events_total",
				Help: "Ledger mutations by op",
			},
			[]string{"op"},
		),
		notifyPublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapper_notify_publish_total",
				Help: "Ledger events published to sinks by sink and status",
			},
			[]string{"sink", "status"},
		),
	}
}

func (m *Metrics) RecordPriceFetch(endpoint string, err error, duration float64) {
	if m == nil {
		return
	}
	m.priceFetchesTotal.WithLabelValues(endpoint, statusOf(err)).Inc()
	m.priceFetchDuration.WithLabelValues(endpoint).Observe(duration)
}

func (m *Metrics) RecordPriceRetry(endpoint string) {
	if m == nil {
		return
	}
	m.priceFetchRetries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordCacheLookup(result string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.priceCacheLookups.WithLabelValues(result).Add(float64(count))
}

func (m *Metrics) RecordPriceFallback(source string) {
	if m == nil {
		return
	}
	m.priceFallbacksTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordSubmission(txType, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(txType, outcome).Inc()
}

func (m *Metrics) RecordApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordConfirmation(txType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.confirmationWait.WithLabelValues(txType, status).Observe(seconds)
}

func (m *Metrics) RecordGuardCheck(result string) {
	if m == nil {
		return
	}
	m.guardChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetLedgerRecords(n int) {
	if m == nil {
		return
	}
	m.ledgerRecords.Set(float64(n))
}

func (m *Metrics) RecordLedgerEvent(op string) {
	if m == nil {
		return
	}
	m.ledgerEventsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordNotifyPublish(sink string, err error) {
	if m == nil {
		return
	}
	m.notifyPublishTotal.WithLabelValues(sink, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
