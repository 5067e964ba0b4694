package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink on top of client_golang collectors,
// registered against whatever *prometheus.Registry the caller passes in —
// the gateway never reaches for the global DefaultRegisterer so tests can
// use an isolated registry.
type PrometheusSink struct {
	requestsTotal    *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec
	ttft             *prometheus.HistogramVec
	requestDuration  *prometheus.HistogramVec
	tokensPerSecond  *prometheus.HistogramVec
}

// NewPrometheusSink creates and registers the collectors backing every
// measurement §4.9 names.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total", Help: "Total gateway requests by provider, model, and outcome status.",
		}, []string{"provider", "model", "status"}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total", Help: "Requests rejected by the rate limiter, by model and selector.",
		}, []string{"model", "selector"}),
		ttft: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "ttft_seconds", Help: "Time to first client byte.", Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "request_duration_seconds", Help: "End-to-end request duration.", Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		tokensPerSecond: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tokens_per_second", Help: "Output tokens per second after the first client byte.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 400},
		}, []string{"provider", "model"}),
	}
	reg.MustRegister(s.requestsTotal, s.rateLimitedTotal, s.ttft, s.requestDuration, s.tokensPerSecond)
	return s
}

func (s *PrometheusSink) RequestsTotal(provider, model, status string) {
	s.requestsTotal.WithLabelValues(provider, model, status).Inc()
}

func (s *PrometheusSink) RateLimitedTotal(model, selector string) {
	s.rateLimitedTotal.WithLabelValues(model, selector).Inc()
}

func (s *PrometheusSink) ObserveTTFT(provider, model string, d time.Duration) {
	s.ttft.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (s *PrometheusSink) ObserveRequestDuration(provider, model string, d time.Duration) {
	s.requestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (s *PrometheusSink) ObserveTokensPerSecond(provider, model string, tokensPerSecond float64) {
	s.tokensPerSecond.WithLabelValues(provider, model).Observe(tokensPerSecond)
}
