// Package translate implements the cross-format request/response transforms
// between every supported wire family. Every exported function here is
// free of I/O: given the same bytes and the same Defaults, it returns the
// same canonical value or the same typed error, except that a tool call
// arriving without an id gets a freshly generated UUID-based id each time.
//
// Every ordered pair (Source, Target) is realized through a hub: each wire
// family implements Decode (wire → canon.ChatRequest/ChatResponse) and
// Encode (canon → wire). Translating A→B is DecodeRequest(A, bytes)
// followed by EncodeRequest(B, req) — the canonical shape is the hub, so N
// decoders + N encoders cover all N² pairs instead of hand-writing each one.
package translate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/llmgw/llmgateway/internal/canon"
)

// Defaults holds the configured fallbacks §4.2/§4.6 require (e.g. Anthropic
// and Bedrock reject requests with no max_tokens).
type Defaults struct {
	MaxTokens           int
	AnthropicVersion    string
	StreamTokenEstimate int
}

// DefaultDefaults matches the values every example in §8.2 assumes.
func DefaultDefaults() Defaults {
	return Defaults{
		MaxTokens:        1024,
		AnthropicVersion: "2023-06-01",
	}
}

// DecodeRequest parses a wire-format request body into the canonical shape.
func DecodeRequest(family canon.Family, body []byte) (*canon.ChatRequest, error) {
	switch family {
	case canon.FamilyOpenAI:
		return decodeOpenAIRequest(body)
	case canon.FamilyAnthropic:
		return decodeAnthropicRequest(body)
	case canon.FamilyGemini:
		return decodeGeminiRequest(body)
	case canon.FamilyBedrock:
		return decodeBedrockRequest(body)
	case canon.FamilyResponses:
		return decodeResponsesRequest(body)
	default:
		return nil, canon.NewError(canon.KindInternalError, fmt.Sprintf("unknown source family %q", family))
	}
}

// EncodeRequest serializes a canonical request into a wire-format body for
// the given target family, applying §4.2's required field mappings.
func EncodeRequest(family canon.Family, req *canon.ChatRequest, d Defaults) ([]byte, error) {
	if len(req.Messages) == 0 {
		return nil, canon.NewError(canon.KindTranslationError, "messages must not be empty").WithPath("messages")
	}
	if err := validateUniqueToolNames(req.Tools); err != nil {
		return nil, err
	}

	switch family {
	case canon.FamilyOpenAI:
		return encodeOpenAIRequest(req, d)
	case canon.FamilyAnthropic:
		return encodeAnthropicRequest(req, d)
	case canon.FamilyGemini:
		return encodeGeminiRequest(req, d)
	case canon.FamilyBedrock:
		return encodeBedrockRequest(req, d)
	case canon.FamilyResponses:
		return encodeResponsesRequest(req, d)
	default:
		return nil, canon.NewError(canon.KindInternalError, fmt.Sprintf("unknown target family %q", family))
	}
}

// DecodeResponse parses a wire-format non-streaming response into canonical
// shape (§4.3).
func DecodeResponse(family canon.Family, body []byte) (*canon.ChatResponse, error) {
	switch family {
	case canon.FamilyOpenAI:
		return decodeOpenAIResponse(body)
	case canon.FamilyAnthropic:
		return decodeAnthropicResponse(body)
	case canon.FamilyGemini:
		return decodeGeminiResponse(body)
	case canon.FamilyBedrock:
		return decodeBedrockResponse(body)
	case canon.FamilyResponses:
		return decodeResponsesResponse(body)
	default:
		return nil, canon.NewError(canon.KindInternalError, fmt.Sprintf("unknown source family %q", family))
	}
}

// EncodeResponse serializes a canonical response into the target format.
func EncodeResponse(family canon.Family, resp *canon.ChatResponse) ([]byte, error) {
	switch family {
	case canon.FamilyOpenAI:
		return encodeOpenAIResponse(resp)
	case canon.FamilyAnthropic:
		return encodeAnthropicResponse(resp)
	case canon.FamilyGemini:
		return encodeGeminiResponse(resp)
	case canon.FamilyBedrock:
		return encodeBedrockResponse(resp)
	case canon.FamilyResponses:
		return encodeResponsesResponse(resp)
	default:
		return nil, canon.NewError(canon.KindInternalError, fmt.Sprintf("unknown target family %q", family))
	}
}

func validateUniqueToolNames(tools []canon.ToolSchema) error {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name] {
			return canon.NewError(canon.KindTranslationError, fmt.Sprintf("duplicate tool name %q", t.Name)).WithPath("tools")
		}
		seen[t.Name] = true
	}
	return nil
}

// synthesizeID mints an id for a tool call that arrives without one
// (Gemini functionCall parts, or an encoder target that needs a non-empty
// id). Every call returns a new id; it stays stable only where the caller
// stores it on the canonical value, so callers invoke this only when the
// source call truly has no id.
func synthesizeID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// finishOpenAIToAnthropic maps OpenAI finish_reason → Anthropic stop_reason
// (§4.3). Unknown values pass through unchanged.
var finishOpenAIToAnthropic = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"content_filter": "content_filter",
}

var finishAnthropicToOpenAI = reverseMap(finishOpenAIToAnthropic)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func mapFinishReason(table map[string]string, reason string) string {
	if reason == "" {
		return ""
	}
	if mapped, ok := table[reason]; ok {
		return mapped
	}
	return reason
}

// geminiFinishToCanonical maps Gemini's SCREAMING_CASE finishReason to the
// OpenAI-style lowercase vocabulary canon.Choice.FinishReason uses.
var geminiFinishToCanonical = map[string]string{
	"STOP":       "stop",
	"MAX_TOKENS": "length",
	"SAFETY":     "content_filter",
	"RECITATION": "content_filter",
	"OTHER":      "stop",
}

var canonicalFinishToGemini = map[string]string{
	"stop":           "STOP",
	"length":         "MAX_TOKENS",
	"tool_calls":     "STOP",
	"content_filter": "SAFETY",
}
