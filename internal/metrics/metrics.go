package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	evaluations       *prometheus.CounterVec
	investments       prometheus.Counter
	investedAmount    prometheus.Counter
	rollingMax        prometheus.Gauge
	triggerPrice      prometheus.Gauge
	lastEvaluation    prometheus.Gauge
	backtestsTotal    *prometheus.CounterVec
	backtestDuration  *prometheus.HistogramVec
	providerRequests  *prometheus.CounterVec
	persistenceWrites *prometheus.CounterVec
	recoveries        *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_evaluations_total",
			Help: "Daily evaluations by outcome",
		},
		[]string{"outcome"},
	)
	r.investments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipper_investments_total",
			Help: "Total number of investments executed",
		},
	)
	r.investedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipper_invested_amount_total",
			Help: "Total currency amount invested",
		},
	)
	r.rollingMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_rolling_max_price",
			Help: "Rolling maximum close at the last evaluation",
		},
	)
	r.triggerPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_trigger_price",
			Help: "Buy trigger price at the last evaluation",
		},
	)
	r.lastEvaluation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_last_evaluation_timestamp_seconds",
			Help: "Unix time of the last completed evaluation",
		},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"mode", "status"},
	)
	r.backtestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dipper_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)
	r.providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_provider_requests_total",
			Help: "Price provider requests by outcome",
		},
		[]string{"provider", "status"},
	)
	r.persistenceWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_persistence_writes_total",
			Help: "State file writes by outcome",
		},
		[]string{"status"},
	)
	r.recoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_persistence_recoveries_total",
			Help: "State loads that recovered from a corrupted main file",
		},
		[]string{"source"},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_notifications_total",
			Help: "Evaluation notifications by channel and outcome",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.evaluations)
	reg.MustRegister(r.investments)
	reg.MustRegister(r.investedAmount)
	reg.MustRegister(r.rollingMax)
	reg.MustRegister(r.triggerPrice)
	reg.MustRegister(r.lastEvaluation)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.providerRequests)
	reg.MustRegister(r.persistenceWrites)
	reg.MustRegister(r.recoveries)
	reg.MustRegister(r.notifications)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordEvaluation counts a completed daily evaluation.
func (r *Registry) RecordEvaluation(outcome string) {
	r.evaluations.WithLabelValues(outcome).Inc()
	r.lastEvaluation.SetToCurrentTime()
}

// RecordInvestment counts an executed investment.
func (r *Registry) RecordInvestment(amount float64) {
	r.investments.Inc()
	r.investedAmount.Add(amount)
}

// SetLevels publishes the rolling max and trigger price.
func (r *Registry) SetLevels(rollingMax, triggerPrice float64) {
	r.rollingMax.Set(rollingMax)
	r.triggerPrice.Set(triggerPrice)
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(mode, status string, elapsed time.Duration) {
	r.backtestsTotal.WithLabelValues(mode, status).Inc()
	r.backtestDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (r *Registry) ProviderRequest(provider, status string) {
	r.providerRequests.WithLabelValues(provider, status).Inc()
}

func (r *Registry) PersistenceWrite(status string) {
	r.persistenceWrites.WithLabelValues(status).Inc()
}

func (r *Registry) PersistenceRecovery(source string) {
	r.recoveries.WithLabelValues(source).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// Notification counts one delivery attempt on a notifier channel.
func (r *Registry) Notification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}
