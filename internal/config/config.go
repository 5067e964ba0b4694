// Package config loads and validates the gateway's configuration payload:
// the provider registry's bindings, rate-limit bucket definitions, and
// cross-cutting defaults, all supplied once at startup.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Providers  []ProviderConfig  `koanf:"providers"`
	RateLimits []RateLimitConfig `koanf:"ratelimits"`
	Defaults   DefaultsConfig    `koanf:"defaults"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AuthConfig names the credential-injection scheme §4.7 describes for one
// provider binding.
type AuthConfig struct {
	// Kind is one of "bearer", "api_key_header", "url_api_key",
	// "aws_sigv4", "passthrough", "none" (§4.7).
	Kind string `koanf:"kind"`

	// HeaderName is the header to set for kind=api_key_header.
	HeaderName string `koanf:"header_name"`

	// Credential is the literal credential value, or a "${VAR}" reference
	// expanded from the process environment at load time. For aws_sigv4 it
	// is "accessKeyID:secretAccessKey" or
	// "accessKeyID:secretAccessKey:sessionToken".
	Credential string `koanf:"credential"`

	// Region is the AWS region for kind=aws_sigv4.
	Region string `koanf:"region"`
}

// ProviderConfig is one entry in the §6.4 `providers` list.
type ProviderConfig struct {
	Slug    string     `koanf:"slug"`
	Family  string     `koanf:"family"` // openai, anthropic, gemini, bedrock, responses
	BaseURL string     `koanf:"base_url"`
	Auth    AuthConfig `koanf:"auth"`
	Models  []string   `koanf:"models"` // explicit names and/or wildcard patterns
	Default bool       `koanf:"default"`
}

// RateLimitConfig is one entry in the §6.4 `ratelimits` list, configuring a
// single token-bucket (§4.8). SelectorHeader, when set, makes this bucket
// per-distinct-value of that request header instead of an aggregate quota
// — resolved against the live request's actual header value at request
// time, so one config entry covers every selector value seen.
type RateLimitConfig struct {
	Model           string  `koanf:"model"`
	SelectorHeader  string  `koanf:"selector_header"`
	Capacity        float64 `koanf:"capacity"`
	RefillPerSecond float64 `koanf:"refill_per_second"`
}

// DefaultsConfig holds the §6.4 `defaults` record.
type DefaultsConfig struct {
	MaxTokens            int     `koanf:"max_tokens"`
	RequestTimeoutMs     int     `koanf:"request_timeout_ms"`
	StreamTokenEstimate  int     `koanf:"stream_token_estimate"`
	AnthropicVersion     string  `koanf:"anthropic_version"`
	RequestTokenEstimate float64 `koanf:"request_token_estimate"`
}

// RequestTimeout returns the configured upstream timeout, defaulting to 30s
// if unset.
func (d DefaultsConfig) RequestTimeout() time.Duration {
	if d.RequestTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.RequestTimeoutMs) * time.Millisecond
}

// Load reads configuration from a YAML file, layers LLMGATEWAY_-prefixed
// environment variable overrides on top, expands "${VAR}" credential
// placeholders, and returns a fully populated, validated Config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := k.Load(env.Provider("LLMGATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMGATEWAY_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for i := range cfg.Providers {
		cfg.Providers[i].Auth.Credential = expandEnv(cfg.Providers[i].Auth.Credential)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envPlaceholder matches every "${VAR_NAME}" placeholder in a credential
// value — the Bedrock SigV4 scheme packs two ("${ACCESS_KEY}:${SECRET_KEY}")
// into one field, so a whole-string match isn't enough.
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv resolves every "${VAR_NAME}" placeholder in v via os.Getenv,
// leaving the rest of the string untouched — the gateway never re-reads
// credentials after startup (§6.4).
func expandEnv(v string) string {
	return envPlaceholder.ReplaceAllStringFunc(v, func(m string) string {
		name := envPlaceholder.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

// validate enforces the structural invariants the rest of the gateway
// assumes it never has to re-check: unique provider slugs, and a
// recognized auth kind per binding.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Slug == "" {
			return fmt.Errorf("config: provider entry missing slug")
		}
		if seen[p.Slug] {
			return fmt.Errorf("config: duplicate provider slug %q", p.Slug)
		}
		seen[p.Slug] = true

		switch p.Auth.Kind {
		case "bearer", "api_key_header", "url_api_key", "aws_sigv4", "passthrough", "none":
		default:
			return fmt.Errorf("config: provider %q has unrecognized auth kind %q", p.Slug, p.Auth.Kind)
		}
	}
	return nil
}
