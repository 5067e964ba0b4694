package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/registry"
)

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/v1/chat/completions", nil)
	require.NoError(t, err)
	return req
}

func TestInject_Bearer(t *testing.T) {
	req := newReq(t)
	err := Inject(context.Background(), req, registry.AuthConfig{Scheme: registry.SchemeBearer, Credential: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestInject_APIKeyHeader(t *testing.T) {
	req := newReq(t)
	err := Inject(context.Background(), req, registry.AuthConfig{
		Scheme: registry.SchemeAPIKeyHeader, HeaderName: "x-api-key", Credential: "secret",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "secret", req.Header.Get("x-api-key"))
}

func TestInject_URLAPIKey(t *testing.T) {
	req := newReq(t)
	err := Inject(context.Background(), req, registry.AuthConfig{Scheme: registry.SchemeURLAPIKey, Credential: "apikey123"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "apikey123", req.URL.Query().Get("key"))
}

func TestInject_None(t *testing.T) {
	req := newReq(t)
	req.Header.Set("Authorization", "Bearer leftover")
	err := Inject(context.Background(), req, registry.AuthConfig{Scheme: registry.SchemeNone}, nil)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestInject_Passthrough(t *testing.T) {
	req := newReq(t)
	req.Header.Set("Authorization", "Bearer client-supplied")
	err := Inject(context.Background(), req, registry.AuthConfig{Scheme: registry.SchemePassthrough}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer client-supplied", req.Header.Get("Authorization"))
}

func TestInject_AwsSigV4_SetsSignatureHeaders(t *testing.T) {
	req := newReq(t)
	err := Inject(context.Background(), req, registry.AuthConfig{
		Scheme: registry.SchemeAwsSigV4, Credential: "AKIAEXAMPLE:secretkeyvalue", Region: "us-east-1",
	}, []byte(`{"model":"anthropic.claude-3"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, req.Header.Get("X-Amz-Content-Sha256"))
	assert.Contains(t, req.Header.Get("Authorization"), "AWS4-HMAC-SHA256")
}

func TestInject_AwsSigV4_MalformedCredential(t *testing.T) {
	req := newReq(t)
	err := Inject(context.Background(), req, registry.AuthConfig{
		Scheme: registry.SchemeAwsSigV4, Credential: "onlyonepart", Region: "us-east-1",
	}, nil)
	require.Error(t, err)
}

func TestURLRewrite_OnlyAppliesForURLAPIKeyScheme(t *testing.T) {
	out, err := URLRewrite("https://generativelanguage.googleapis.com/v1/models/gemini-1.5-pro:generateContent", registry.AuthConfig{
		Scheme: registry.SchemeURLAPIKey, Credential: "gk-123",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "key=gk-123")

	out, err = URLRewrite("https://api.openai.com/v1/chat/completions", registry.AuthConfig{Scheme: registry.SchemeBearer})
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", out)
}
