package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/canon"
)

// TestOpenAIToAnthropicNonStreaming is scenario S1: system message extracted
// to the top-level field, max_tokens carried through, path concerns aside.
func TestOpenAIToAnthropicNonStreaming(t *testing.T) {
	body := []byte(`{"model":"claude-3-5-sonnet","messages":[{"role":"system","content":"be terse"},{"role":"user","content":"hi"}],"max_tokens":50}`)

	req, err := DecodeRequest(canon.FamilyOpenAI, body)
	require.NoError(t, err)

	out, err := EncodeRequest(canon.FamilyAnthropic, req, DefaultDefaults())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, "be terse", decoded["system"])
	assert.EqualValues(t, 50, decoded["max_tokens"])

	msgs, ok := decoded["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "hi", first["content"])
}

// TestAnthropicRequiresDefaultMaxTokens covers §4.2: Anthropic/Bedrock
// require max_tokens; when the source omits it, the configured default
// fills in.
func TestAnthropicRequiresDefaultMaxTokens(t *testing.T) {
	req := &canon.ChatRequest{
		Model:    "claude-3-5-sonnet",
		Messages: []canon.Message{{Role: canon.RoleUser, Text: "hi"}},
	}
	out, err := EncodeRequest(canon.FamilyAnthropic, req, Defaults{MaxTokens: 777})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.EqualValues(t, 777, decoded["max_tokens"])
}

// TestToolCallCrossFamilyRoundTrip is scenario S3: an OpenAI tool schema
// becomes an Anthropic input_schema, and an Anthropic tool_use response
// becomes an OpenAI tool_calls entry with finish_reason tool_calls.
func TestToolCallCrossFamilyRoundTrip(t *testing.T) {
	openaiReqBody := []byte(`{
		"model":"claude-3-5-sonnet",
		"messages":[{"role":"user","content":"weather in paris?"}],
		"tools":[{"type":"function","function":{"name":"get_weather","parameters":{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}}}]
	}`)

	req, err := DecodeRequest(canon.FamilyOpenAI, openaiReqBody)
	require.NoError(t, err)

	anthropicBody, err := EncodeRequest(canon.FamilyAnthropic, req, DefaultDefaults())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(anthropicBody, &decoded))
	tools := decoded["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "get_weather", tool["name"])
	schema := tool["input_schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])

	anthropicRespBody := []byte(`{
		"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet",
		"content":[{"type":"tool_use","id":"tu_1","name":"get_weather","input":{"city":"Paris"}}],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":10,"output_tokens":5}
	}`)

	canonResp, err := DecodeResponse(canon.FamilyAnthropic, anthropicRespBody)
	require.NoError(t, err)

	openaiRespBody, err := EncodeResponse(canon.FamilyOpenAI, canonResp)
	require.NoError(t, err)

	var openaiResp map[string]any
	require.NoError(t, json.Unmarshal(openaiRespBody, &openaiResp))
	choices := openaiResp["choices"].([]any)
	require.Len(t, choices, 1)
	choice := choices[0].(map[string]any)
	assert.Equal(t, "tool_calls", choice["finish_reason"])
	msg := choice["message"].(map[string]any)
	toolCalls := msg["tool_calls"].([]any)
	require.Len(t, toolCalls, 1)
	tc := toolCalls[0].(map[string]any)
	assert.Equal(t, "tu_1", tc["id"])
	fn := tc["function"].(map[string]any)
	assert.Equal(t, "get_weather", fn["name"])
	assert.JSONEq(t, `{"city":"Paris"}`, fn["arguments"].(string))
}

// TestDuplicateToolNamesRejected covers the ChatRequest invariant in §3.1.
func TestDuplicateToolNamesRejected(t *testing.T) {
	req := &canon.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []canon.Message{{Role: canon.RoleUser, Text: "hi"}},
		Tools: []canon.ToolSchema{
			{Name: "dup"},
			{Name: "dup"},
		},
	}
	_, err := EncodeRequest(canon.FamilyOpenAI, req, DefaultDefaults())
	require.Error(t, err)
	gwErr, ok := err.(*canon.Error)
	require.True(t, ok)
	assert.Equal(t, canon.KindTranslationError, gwErr.Kind)
}

// TestEmptyMessagesRejected covers the ChatRequest invariant messages.len() >= 1.
func TestEmptyMessagesRejected(t *testing.T) {
	req := &canon.ChatRequest{Model: "gpt-4o-mini"}
	_, err := EncodeRequest(canon.FamilyOpenAI, req, DefaultDefaults())
	require.Error(t, err)
}

// TestAlternatingRolesMerged covers §4.2: adjacent same-role messages merge
// and an empty user turn is injected before a leading assistant message.
func TestAlternatingRolesMerged(t *testing.T) {
	req := &canon.ChatRequest{
		Model: "claude-3-5-sonnet",
		Messages: []canon.Message{
			{Role: canon.RoleAssistant, Text: "leading assistant turn"},
			{Role: canon.RoleAssistant, Text: "second assistant turn"},
			{Role: canon.RoleUser, Text: "user turn"},
		},
	}
	out, err := EncodeRequest(canon.FamilyAnthropic, req, DefaultDefaults())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	msgs := decoded["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
}

// TestGeminiSchemaDropsUnsupportedKeywords covers §4.2's Gemini JSON-Schema
// subsetting rule.
func TestGeminiSchemaDropsUnsupportedKeywords(t *testing.T) {
	req := &canon.ChatRequest{
		Model:    "gemini-1.5-pro",
		Messages: []canon.Message{{Role: canon.RoleUser, Text: "hi"}},
		Tools: []canon.ToolSchema{{
			Name: "lookup",
			Parameters: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"$ref":                 "#/defs/x",
				"properties":           map[string]any{"q": map[string]any{"type": "string"}},
			},
		}},
	}
	out, err := EncodeRequest(canon.FamilyGemini, req, DefaultDefaults())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	tools := decoded["tools"].([]any)
	decls := tools[0].(map[string]any)["functionDeclarations"].([]any)
	params := decls[0].(map[string]any)["parameters"].(map[string]any)
	_, hasAdditional := params["additionalProperties"]
	_, hasRef := params["$ref"]
	assert.False(t, hasAdditional)
	assert.False(t, hasRef)
	assert.Contains(t, params, "properties")
}
