// Package canon defines the canonical, provider-agnostic request, response,
// and streaming-event shapes that every wire format is translated through.
//
// Nothing in this package touches the network, a clock, or a global. It is
// the L1 "translation library" layer: callers in internal/translate and
// internal/streaming build canon values and read them back, but canon itself
// never reaches outside its own types.
package canon

import "encoding/json"

// Family identifies a wire-format family: the concrete shape a provider
// speaks on the wire, independent of which concrete provider binding (see
// internal/registry) ends up handling a request.
type Family string

const (
	FamilyOpenAI    Family = "openai"    // OpenAI Chat Completions, and OpenAI-compatible providers
	FamilyAnthropic Family = "anthropic" // Anthropic Messages API
	FamilyGemini    Family = "gemini"    // Google Gemini generateContent
	FamilyBedrock   Family = "bedrock"   // Amazon Bedrock Converse/InvokeModel (Anthropic-shaped body)
	FamilyResponses Family = "responses" // OpenAI Responses API
)

// Role is a message role. Only these four are meaningful across every
// supported wire format; a Gemini "model" role or Bedrock-flavored role is
// mapped to/from "assistant" at the translation boundary, never stored here.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates a structured content part.
type PartType string

const (
	PartText       PartType = "text"
	PartImageURL   PartType = "image_url"
	PartFile       PartType = "file"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// ContentPart is one piece of a message's content. A message is either plain
// text (Message.Text set, Parts nil) or structured (Parts set). Keeping both
// representations avoids forcing every single-string message through a
// one-element slice, which is the common case for every provider.
type ContentPart struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	// ImageURL holds either a remote URL or a data: URI, depending on what
	// the source format supplied. The gateway never fetches or decodes it.
	ImageURL string `json:"image_url,omitempty"`

	// FileData is an opaque, already-encoded file payload (e.g. base64).
	FileName string `json:"file_name,omitempty"`
	FileData string `json:"file_data,omitempty"`

	// ToolUse is populated when Type == PartToolUse: the assistant invoked
	// a tool. ArgumentsJSON is always an opaque JSON-encoded string — the
	// gateway never parses tool arguments (§4.1).
	ToolUseID     string `json:"tool_use_id,omitempty"`
	ToolUseName   string `json:"tool_use_name,omitempty"`
	ArgumentsJSON string `json:"arguments_json,omitempty"`

	// ToolResult is populated when Type == PartToolResult: this part is the
	// result of a prior tool_use, referenced by id.
	ToolResultID      string `json:"tool_result_id,omitempty"`
	ToolResultContent string `json:"tool_result_content,omitempty"`
	ToolResultIsError bool   `json:"tool_result_is_error,omitempty"`
}

// ToolCall is an assistant-issued tool invocation, carried either inline on
// Message.ToolCalls (OpenAI shape) or as a tool_use ContentPart (Anthropic,
// Bedrock, Gemini shape) — translate functions normalize to whichever
// representation the target format expects.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Message is one turn in a conversation.
type Message struct {
	Role Role `json:"role"`

	// Text is the simple-content case: a single string body. Nil/empty
	// Parts with non-empty Text means "plain text message".
	Text string `json:"text,omitempty"`

	// Parts holds structured content (images, files, tool_use, tool_result
	// blocks). When non-nil it takes precedence over Text.
	Parts []ContentPart `json:"parts,omitempty"`

	// Name is an optional display/function name (OpenAI allows naming
	// participants; tool messages sometimes carry the tool's name here).
	Name string `json:"name,omitempty"`

	// ToolCallID links a RoleTool message back to the assistant ToolCall
	// it answers (OpenAI shape). Anthropic/Bedrock/Gemini instead carry
	// this via a tool_result ContentPart on a user message.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls holds the assistant's pending tool invocations in the
	// OpenAI inline-array shape. Anthropic/Bedrock/Gemini represent the
	// same information as ContentPart entries of type tool_use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolSchema is one tool definition offered to the model. Parameters is a
// JSON-Schema object, passed through structurally; the gateway inspects only
// the keywords §4.2 names (for Gemini's subsetting) and otherwise leaves it
// untouched.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Usage normalizes every provider's token accounting to one shape.
type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// Add accumulates usage deltas arriving across a stream.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ChatRequest is the canonical request shape every wire format decodes into
// and every wire format encodes out of.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Tools       []ToolSchema   `json:"tools,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	ToolChoice  any            `json:"tool_choice,omitempty"`
	Logprobs    bool           `json:"logprobs,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Passthrough carries top-level fields the canonical shape has no slot
	// for. Decode functions stash unrecognized keys here; encode functions
	// re-emit them when the target format has no conflicting field (§4.1).
	Passthrough map[string]json.RawMessage `json:"-"`
}

// FirstSystemText concatenates every system-role message's text, in order,
// joined by a blank line — the merge rule every non-OpenAI target uses
// (§4.2). Returns "" if there are no system messages.
func (r *ChatRequest) FirstSystemText() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem && m.Text != "" {
			parts = append(parts, m.Text)
		}
	}
	return joinNonEmpty(parts, "\n\n")
}

// NonSystemMessages returns every message that isn't role=system, preserving
// order.
func (r *ChatRequest) NonSystemMessages() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// Choice is one generated alternative in a non-streaming ChatResponse.
type Choice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// ChatResponse is the canonical non-streaming response shape.
type ChatResponse struct {
	ID      string   `json:"id"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	Passthrough map[string]json.RawMessage `json:"-"`
}

// StreamEventKind discriminates a StreamEvent. Event order per choice is:
// at most one RoleDelta, then any number of ContentDelta/ToolCallDelta,
// then Finish, then optionally Usage, then Done (§3.1).
type StreamEventKind string

const (
	EventRoleDelta     StreamEventKind = "role_delta"
	EventContentDelta  StreamEventKind = "content_delta"
	EventToolCallDelta StreamEventKind = "tool_call_delta"
	EventUsageDelta    StreamEventKind = "usage_delta"
	EventFinish        StreamEventKind = "finish_delta"
	EventDone          StreamEventKind = "done"
	EventError         StreamEventKind = "error"
)

// ToolCallDelta is an incremental fragment of one tool call's arguments,
// addressed by a (choice index, block index) pair so fragments from
// interleaved tool calls never cross streams (§4.4).
type ToolCallDelta struct {
	BlockIndex     int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// StreamEvent is one logical event produced by the streaming engine, already
// translated into the canonical shape; a per-target encoder turns it into
// framed bytes.
type StreamEvent struct {
	Kind        StreamEventKind
	ChoiceIndex int

	ID    string // response id, stable across one session
	Model string

	Role         Role
	ContentDelta string
	ToolCall     *ToolCallDelta
	Usage        *Usage
	FinishReason string
	Err          error
}
