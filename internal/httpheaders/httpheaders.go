// Package httpheaders parses the gateway-specific request headers: the
// provider hint, the rate-limit selector, and the streaming override.
package httpheaders

import (
	"net/http"
	"strconv"
)

const (
	ProviderHint      = "x-llm-provider-hint"
	RateLimitSelector = "x-ratelimit-selector"
	StreamingRequest  = "x-streaming-request"
)

// ProviderHintValue returns the raw "<provider_slug>/<model_name>" hint, or
// "" if absent.
func ProviderHintValue(h http.Header) string {
	return h.Get(ProviderHint)
}

// Selector returns the rate-limit selector value, or "" if absent.
func Selector(h http.Header) string {
	return h.Get(RateLimitSelector)
}

// StreamingOverride reports whether x-streaming-request was present and, if
// so, its parsed bool value — an explicit override in place of inferring
// from the body's "stream" field.
func StreamingOverride(h http.Header) (value, present bool) {
	raw := h.Get(StreamingRequest)
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}
