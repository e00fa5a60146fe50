package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	UrgencyScore       prometheus.Histogram
	InvalidInputTotal  prometheus.Counter
	InternalErrorTotal prometheus.Counter
	StoreErrorsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medassist_analyses_total",
			Help: "Total symptom analyses by matched rule and urgency level.",
		}, []string{"rule", "urgency_level"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medassist_analysis_duration_seconds",
			Help:    "Duration of symptom analyses including persistence, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us .. ~26s
		}),
		UrgencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medassist_urgency_score",
			Help:    "Urgency score of completed analyses.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		InvalidInputTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medassist_invalid_input_total",
			Help: "Total analyses rejected for invalid input.",
		}),
		InternalErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medassist_internal_errors_total",
			Help: "Total analyses that failed with an internal error.",
		}),
		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medassist_store_errors_total",
			Help: "Total result store failures by operation.",
		}, []string{"op"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medassist_notifications_total",
			Help: "Total urgent-result notifications by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.UrgencyScore,
		m.InvalidInputTotal,
		m.InternalErrorTotal,
		m.StoreErrorsTotal,
		m.NotificationsTotal,
	)

	return m
}

func (m *Metrics) observeAnalysis(r *Result, seconds float64) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(r.Rule, string(r.UrgencyLevel)).Inc()
	m.AnalysisDuration.Observe(seconds)
	m.UrgencyScore.Observe(float64(r.UrgencyScore))
}

func (m *Metrics) observeInvalid() {
	if m == nil {
		return
	}
	m.InvalidInputTotal.Inc()
}

func (m *Metrics) observeInternal() {
	if m == nil {
		return
	}
	m.InternalErrorTotal.Inc()
}

func (m *Metrics) observeStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) observeNotification(ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}
