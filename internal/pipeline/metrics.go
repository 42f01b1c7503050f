package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the chain's Prometheus collectors.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageRequests *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	cancelled     *prometheus.CounterVec
	completions   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hmac_gateway_stage_duration_seconds",
			Help:    "Duration of authentication stages in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"stage"}),
		stageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hmac_gateway_stage_requests_total",
			Help: "Number of requests processed by each authentication stage",
		}, []string{"stage"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hmac_gateway_rejections_total",
			Help: "Number of rejected requests by stage and rejection kind",
		}, []string{"stage", "kind"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hmac_gateway_stage_cancelled_total",
			Help: "Number of times the request context ended during a stage",
		}, []string{"stage"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hmac_gateway_idempotency_completions_total",
			Help: "Number of idempotency claims completed, by result",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors returns every collector held by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.stageDuration, m.stageRequests, m.rejections, m.cancelled, m.completions}
}
