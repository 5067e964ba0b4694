package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

providers:
  - slug: google
    family: gemini
    base_url: https://example.com/v1
    auth:
      kind: url_api_key
      credential: ${TEST_API_KEY}
    models:
      - model-a
      - model-b

ratelimits:
  - model: model-a
    capacity: 1000
    refill_per_second: 100

defaults:
  max_tokens: 1024
  anthropic_version: "2023-06-01"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	require.Len(t, cfg.Providers, 1)
	google := cfg.Providers[0]
	assert.Equal(t, "google", google.Slug)
	assert.Equal(t, "gemini", google.Family)
	assert.Equal(t, "https://example.com/v1", google.BaseURL)
	assert.Equal(t, "my-secret-key", google.Auth.Credential)
	assert.Equal(t, []string{"model-a", "model-b"}, google.Models)

	require.Len(t, cfg.RateLimits, 1)
	assert.Equal(t, "model-a", cfg.RateLimits[0].Model)
	assert.Equal(t, 1000.0, cfg.RateLimits[0].Capacity)

	assert.Equal(t, 1024, cfg.Defaults.MaxTokens)
	assert.Equal(t, "2023-06-01", cfg.Defaults.AnthropicVersion)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("LLMGATEWAY_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadRejectsDuplicateSlug(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
providers:
  - slug: dup
    family: openai
    base_url: https://a.example.com
    auth:
      kind: bearer
      credential: x
    models: ["*"]
  - slug: dup
    family: openai
    base_url: https://b.example.com
    auth:
      kind: bearer
      credential: y
    models: ["*"]
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	require.Error(t, err)
}

func TestLoadExpandsMultipleEnvPlaceholdersInOneCredential(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
providers:
  - slug: bedrock-claude
    family: bedrock
    base_url: https://bedrock-runtime.us-east-1.amazonaws.com
    auth:
      kind: aws_sigv4
      region: us-east-1
      credential: ${TEST_AWS_ACCESS_KEY}:${TEST_AWS_SECRET_KEY}
    models: ["anthropic.claude-3-5-sonnet-20241022-v2:0"]
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_AWS_ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("TEST_AWS_SECRET_KEY", "secretvalue")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "AKIAEXAMPLE:secretvalue", cfg.Providers[0].Auth.Credential)
}

func TestLoadRejectsUnknownAuthKind(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
providers:
  - slug: broken
    family: openai
    base_url: https://a.example.com
    auth:
      kind: made_up_scheme
      credential: x
    models: ["*"]
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	require.Error(t, err)
}
