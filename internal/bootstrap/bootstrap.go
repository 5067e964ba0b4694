// Package bootstrap wires a loaded config.Config into the read-only
// registry.Registry and ratelimit.Store singletons the request pipeline
// reads for the lifetime of the process (§3.3, §9 "shared global state").
// This is the one place config's plain data crosses into the typed shapes
// internal/registry, internal/ratelimit, and internal/translate expect.
package bootstrap

import (
	"fmt"

	"github.com/llmgw/llmgateway/internal/canon"
	"github.com/llmgw/llmgateway/internal/config"
	"github.com/llmgw/llmgateway/internal/ratelimit"
	"github.com/llmgw/llmgateway/internal/registry"
	"github.com/llmgw/llmgateway/internal/translate"
)

// BuildRegistry converts the configured provider list into a registry.Registry,
// in configuration order, matching §4.5's order-sensitive lookup.
func BuildRegistry(providers []config.ProviderConfig) (*registry.Registry, error) {
	bindings := make([]registry.Binding, 0, len(providers))
	for _, p := range providers {
		family, err := parseFamily(p.Family)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Slug, err)
		}
		scheme, err := parseScheme(p.Auth.Kind)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Slug, err)
		}
		bindings = append(bindings, registry.Binding{
			Slug:    p.Slug,
			Family:  family,
			BaseURL: p.BaseURL,
			Auth: registry.AuthConfig{
				Scheme:     scheme,
				HeaderName: p.Auth.HeaderName,
				Credential: p.Auth.Credential,
				Region:     p.Auth.Region,
			},
			Models:  p.Models,
			Default: p.Default,
		})
	}
	return registry.New(bindings), nil
}

// BuildRateLimitStore configures one bucket per §6.4 `ratelimits` entry.
// A selector-bearing entry is realized lazily: the store holds one bucket
// per (model, selector) pair actually seen on the wire, all sharing the
// entry's capacity/refill, since the selector's value space isn't known at
// startup (it is whatever the client sends in x-ratelimit-selector).
func BuildRateLimitStore(entries []config.RateLimitConfig) *ratelimit.Store {
	store := ratelimit.NewStore()
	for _, e := range entries {
		if e.SelectorHeader != "" {
			continue // provisioned per selector value by EnsureSelectorBucket
		}
		store.Configure(ratelimit.Key{Model: e.Model}, e.Capacity, e.RefillPerSecond)
	}
	return store
}

// SelectorHeaders maps model name to the configured selector header name,
// so the pipeline knows which request header (if any) to read for a
// per-tenant bucket on that model, and lazily provisions a bucket for each
// new selector value it observes using the entry's capacity/refill.
type SelectorHeaders struct {
	byModel map[string]config.RateLimitConfig
}

func BuildSelectorHeaders(entries []config.RateLimitConfig) *SelectorHeaders {
	sh := &SelectorHeaders{byModel: make(map[string]config.RateLimitConfig, len(entries))}
	for _, e := range entries {
		if e.SelectorHeader != "" {
			sh.byModel[e.Model] = e
		}
	}
	return sh
}

// HeaderFor returns the selector header name configured for model, or "" if
// the model's bucket (if any) has no selector dimension.
func (sh *SelectorHeaders) HeaderFor(model string) string {
	if sh == nil {
		return ""
	}
	if e, ok := sh.byModel[model]; ok {
		return e.SelectorHeader
	}
	return ""
}

// EnsureSelectorBucket provisions the (model, selector) bucket on first use,
// using the same capacity/refill as the model's configured entry. It does
// nothing when selector is empty or the model has no selector-bearing entry.
func (sh *SelectorHeaders) EnsureSelectorBucket(store *ratelimit.Store, model, selector string) {
	if sh == nil || selector == "" {
		return
	}
	e, ok := sh.byModel[model]
	if !ok {
		return
	}
	key := ratelimit.Key{Model: model, Selector: selector}
	if _, exists := store.Lookup(key); !exists {
		store.Configure(key, e.Capacity, e.RefillPerSecond)
	}
}

// Defaults converts the §6.4 `defaults` record into translate.Defaults.
func Defaults(d config.DefaultsConfig) translate.Defaults {
	def := translate.DefaultDefaults()
	if d.MaxTokens > 0 {
		def.MaxTokens = d.MaxTokens
	}
	if d.AnthropicVersion != "" {
		def.AnthropicVersion = d.AnthropicVersion
	}
	if d.StreamTokenEstimate > 0 {
		def.StreamTokenEstimate = d.StreamTokenEstimate
	}
	return def
}

func parseFamily(s string) (canon.Family, error) {
	switch canon.Family(s) {
	case canon.FamilyOpenAI, canon.FamilyAnthropic, canon.FamilyGemini, canon.FamilyBedrock, canon.FamilyResponses:
		return canon.Family(s), nil
	default:
		return "", fmt.Errorf("unrecognized provider family %q", s)
	}
}

func parseScheme(s string) (registry.Scheme, error) {
	switch registry.Scheme(s) {
	case registry.SchemeBearer, registry.SchemeAPIKeyHeader, registry.SchemeURLAPIKey,
		registry.SchemeAwsSigV4, registry.SchemePassthrough, registry.SchemeNone:
		return registry.Scheme(s), nil
	default:
		return "", fmt.Errorf("unrecognized auth kind %q", s)
	}
}
