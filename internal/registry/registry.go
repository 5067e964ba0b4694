// Package registry binds a requested model name to the provider that should
// serve it. It is read-only after construction, so request-path lookups
// never take a lock.
package registry

import (
	"strings"

	"github.com/llmgw/llmgateway/internal/canon"
)

// Binding is one configured provider entry.
type Binding struct {
	Slug    string
	Family  canon.Family
	BaseURL string
	Auth    AuthConfig
	Models  []string // explicit names and/or wildcard patterns ("*", "acme/*")
	Default bool
}

// AuthConfig names the auth scheme and credential to inject for this
// binding's requests (§4.7). Credential is resolved once at startup (§6.4)
// and never re-read during request handling.
type AuthConfig struct {
	Scheme     Scheme
	HeaderName string // for ApiKeyHeader
	Credential string
	Region     string // for AwsSigV4
}

// Scheme is one of the auth injection strategies §4.7 names.
type Scheme string

const (
	SchemeBearer       Scheme = "bearer"
	SchemeAPIKeyHeader Scheme = "api_key_header"
	SchemeURLAPIKey    Scheme = "url_api_key"
	SchemeAwsSigV4     Scheme = "aws_sigv4"
	SchemePassthrough  Scheme = "passthrough"
	SchemeNone         Scheme = "none"
)

// Registry is the read-only, initialized-once binding set.
type Registry struct {
	bindings []Binding
	bySlug   map[string]*Binding
}

// New builds a Registry from configuration order; order is preserved since
// §4.5's lookup algorithm is order-sensitive (first match wins).
func New(bindings []Binding) *Registry {
	r := &Registry{bindings: bindings, bySlug: make(map[string]*Binding, len(bindings))}
	for i := range r.bindings {
		r.bySlug[r.bindings[i].Slug] = &r.bindings[i]
	}
	return r
}

// Resolved is the outcome of a successful lookup.
type Resolved struct {
	Binding *Binding
	Model   string
}

// Resolve implements §4.5's lookup algorithm: hint header first, then
// configuration-order first match, then the default-flagged binding, else
// UnknownModel.
func (r *Registry) Resolve(model, providerHint string) (*Resolved, error) {
	if providerHint != "" {
		slug, hintedModel, ok := strings.Cut(providerHint, "/")
		if ok {
			if b, found := r.bySlug[slug]; found && matchesAny(b.Models, hintedModel) {
				return &Resolved{Binding: b, Model: hintedModel}, nil
			}
		}
	}

	for i := range r.bindings {
		b := &r.bindings[i]
		if matchesAny(b.Models, model) {
			return &Resolved{Binding: b, Model: model}, nil
		}
	}

	for i := range r.bindings {
		if r.bindings[i].Default {
			return &Resolved{Binding: &r.bindings[i], Model: model}, nil
		}
	}

	return nil, canon.NewError(canon.KindUnknownModel, "no provider registered for model "+model)
}

// Models lists every model name or pattern known to the registry, for the
// GET /v1/models surface. Wildcard patterns are listed verbatim — they
// describe a class of models, not one model.
func (r *Registry) Models() []string {
	var out []string
	for _, b := range r.bindings {
		out = append(out, b.Models...)
	}
	return out
}

// matchesAny reports whether model matches any pattern in patterns, per
// §4.5's purely textual wildcard rule: "*" matches anything, "prefix/*"
// matches any name starting with "prefix/", everything else is an exact
// match.
func matchesAny(patterns []string, model string) bool {
	for _, p := range patterns {
		if matches(p, model) {
			return true
		}
	}
	return false
}

func matches(pattern, model string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == model
}
