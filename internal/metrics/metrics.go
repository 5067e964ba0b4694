// Package metrics defines the abstract measurement sink the gateway core
// reports into. The core never binds to a concrete metrics backend; Sink is
// the seam, and PrometheusSink is the one concrete implementation the
// gateway ships.
package metrics

import "time"

// Sink records the five measurements §4.9 names. Emissions are best-effort
// (§5): a full channel or backpressured exporter may drop a sample, and
// callers must not let that affect request handling.
type Sink interface {
	RequestsTotal(provider, model, status string)
	RateLimitedTotal(model, selector string)
	ObserveTTFT(provider, model string, d time.Duration)
	ObserveRequestDuration(provider, model string, d time.Duration)
	ObserveTokensPerSecond(provider, model string, tokensPerSecond float64)
}

// NoopSink discards every measurement — the default when no metrics
// backend is configured, so the core never has a nil-sink special case.
type NoopSink struct{}

func (NoopSink) RequestsTotal(provider, model, status string)                   {}
func (NoopSink) RateLimitedTotal(model, selector string)                        {}
func (NoopSink) ObserveTTFT(provider, model string, d time.Duration)            {}
func (NoopSink) ObserveRequestDuration(provider, model string, d time.Duration) {}
func (NoopSink) ObserveTokensPerSecond(provider, model string, tps float64)     {}
