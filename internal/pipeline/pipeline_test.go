package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/bootstrap"
	"github.com/llmgw/llmgateway/internal/canon"
	"github.com/llmgw/llmgateway/internal/ratelimit"
	"github.com/llmgw/llmgateway/internal/registry"
	"github.com/llmgw/llmgateway/internal/translate"
)

// stubDispatcher returns a fixed response, recording the last request it saw
// so tests can assert on the translated upstream body/URL.
type stubDispatcher struct {
	resp     *http.Response
	err      error
	lastReq  *http.Request
	lastBody []byte
}

func (s *stubDispatcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	s.lastReq = req
	if req.Body != nil {
		s.lastBody, _ = io.ReadAll(req.Body)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestPipeline(t *testing.T, disp *stubDispatcher, reg *registry.Registry, store *ratelimit.Store) *Pipeline {
	t.Helper()
	if store == nil {
		store = ratelimit.NewStore()
	}
	sel := bootstrap.BuildSelectorHeaders(nil)
	return New(reg, store, sel, disp, nil, translate.DefaultDefaults(), 5*time.Second, 1)
}

// TestHandle_OpenAIClientToAnthropicProvider is scenario S1 end-to-end
// through the pipeline: an OpenAI-shaped client request resolves to an
// Anthropic-bound provider, gets translated upstream, and the Anthropic
// response comes back translated to OpenAI shape.
func TestHandle_OpenAIClientToAnthropicProvider(t *testing.T) {
	reg := registry.New([]registry.Binding{{
		Slug:   "anthropic-primary",
		Family: canon.FamilyAnthropic,
		BaseURL: "https://mock.upstream",
		Auth:   registry.AuthConfig{Scheme: registry.SchemeBearer, Credential: "sk-ant-test"},
		Models: []string{"claude-3-5-sonnet"},
	}})

	anthropicResp := `{
		"id":"msg_abc","type":"message","role":"assistant","model":"claude-3-5-sonnet",
		"content":[{"type":"text","text":"Hello there"}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":12,"output_tokens":4}
	}`
	disp := &stubDispatcher{resp: jsonResponse(200, anthropicResp)}

	p := newTestPipeline(t, disp, reg, nil)

	reqBody := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hi"}],"max_tokens":50}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	p.Handle(rec, req, canon.FamilyOpenAI)

	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	choices := out["choices"].([]any)
	require.Len(t, choices, 1)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "Hello there", msg["content"])

	// The upstream request must have been translated to Anthropic shape and
	// carry the configured bearer credential.
	require.NotNil(t, disp.lastReq)
	assert.Equal(t, "Bearer sk-ant-test", disp.lastReq.Header.Get("Authorization"))
	var upstreamBody map[string]any
	require.NoError(t, json.Unmarshal(disp.lastBody, &upstreamBody))
	assert.EqualValues(t, 50, upstreamBody["max_tokens"])
}

// TestHandle_RateLimited covers §4.6's RATE_CHECKED rejection path: a
// pre-exhausted bucket for the requested model produces a 429 with a
// Retry-After-bearing error body, and never reaches the dispatcher.
func TestHandle_RateLimited(t *testing.T) {
	reg := registry.New([]registry.Binding{{
		Slug:   "openai-primary",
		Family: canon.FamilyOpenAI,
		BaseURL: "https://mock.upstream",
		Auth:   registry.AuthConfig{Scheme: registry.SchemeBearer, Credential: "sk-test"},
		Models: []string{"gpt-4o-mini"},
	}})

	store := ratelimit.NewStore()
	store.Configure(ratelimit.Key{Model: "gpt-4o-mini"}, 0, 1) // zero capacity: everything is rejected

	disp := &stubDispatcher{resp: jsonResponse(200, `{}`)}
	p := newTestPipeline(t, disp, reg, store)

	reqBody := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	p.Handle(rec, req, canon.FamilyOpenAI)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Nil(t, disp.lastReq)
}

// TestHandle_UnknownModel covers §4.5/§7: a model with no matching binding
// and no default returns UnknownModel's mapped 400.
func TestHandle_UnknownModel(t *testing.T) {
	reg := registry.New([]registry.Binding{{
		Slug: "openai-primary", Family: canon.FamilyOpenAI, Models: []string{"gpt-4o-mini"},
	}})
	disp := &stubDispatcher{}
	p := newTestPipeline(t, disp, reg, nil)

	reqBody := `{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	p.Handle(rec, req, canon.FamilyOpenAI)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandle_UpstreamErrorStatusPreserved covers §7's "upstream-preserved"
// rule: a non-2xx upstream response surfaces with its own status code.
func TestHandle_UpstreamErrorStatusPreserved(t *testing.T) {
	reg := registry.New([]registry.Binding{{
		Slug: "openai-primary", Family: canon.FamilyOpenAI, BaseURL: "https://mock.upstream",
		Auth: registry.AuthConfig{Scheme: registry.SchemeBearer, Credential: "sk-test"},
		Models: []string{"gpt-4o-mini"},
	}})
	disp := &stubDispatcher{resp: jsonResponse(503, `{"error":"overloaded"}`)}
	p := newTestPipeline(t, disp, reg, nil)

	reqBody := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	rec := httptest.NewRecorder()

	p.Handle(rec, req, canon.FamilyOpenAI)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
