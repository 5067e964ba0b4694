package translate

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// ---------------------------------------------------------------------------
// Anthropic Messages wire shapes
// ---------------------------------------------------------------------------

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *anthropicImageSource `json:"source,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	// Content on a tool_result block can be a plain string or a nested
	// block array; the gateway only ever produces the string form but
	// must tolerate decoding either.
	ToolResultContent json.RawMessage `json:"content,omitempty"`
	IsError           bool            `json:"is_error,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// anthropicRequestKnownKeys/anthropicResponseKnownKeys name every top-level
// field the structs above already handle (§4.1).
var anthropicRequestKnownKeys = map[string]bool{
	"model": true, "max_tokens": true, "system": true, "messages": true,
	"tools": true, "stop_sequences": true, "stream": true, "temperature": true, "top_p": true,
}

var anthropicResponseKnownKeys = map[string]bool{
	"id": true, "type": true, "role": true, "content": true, "model": true, "stop_reason": true, "usage": true,
}

// ---------------------------------------------------------------------------
// content helpers
// ---------------------------------------------------------------------------

func decodeAnthropicContent(raw json.RawMessage) (text string, parts []canon.ContentPart, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, nil
	}
	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, canon.NewError(canon.KindBadRequest, "message content must be a string or array of blocks")
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, canon.ContentPart{Type: canon.PartText, Text: b.Text})
		case "image":
			part := canon.ContentPart{Type: canon.PartImageURL}
			if b.Source != nil {
				if b.Source.Type == "url" {
					part.ImageURL = b.Source.URL
				} else {
					part.ImageURL = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
				}
			}
			parts = append(parts, part)
		case "tool_use":
			argsJSON, _ := json.Marshal(b.Input)
			parts = append(parts, canon.ContentPart{
				Type: canon.PartToolUse, ToolUseID: b.ID, ToolUseName: b.Name, ArgumentsJSON: string(argsJSON),
			})
		case "tool_result":
			content := decodeToolResultContent(b.ToolResultContent)
			parts = append(parts, canon.ContentPart{
				Type: canon.PartToolResult, ToolResultID: b.ToolUseID, ToolResultContent: content, ToolResultIsError: b.IsError,
			})
		}
	}
	return "", parts, nil
}

// decodeToolResultContent tolerates both the plain-string and nested-block
// shapes Anthropic allows for a tool_result's content.
func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}

func encodeAnthropicContent(m canon.Message) (json.RawMessage, error) {
	if len(m.Parts) == 0 && len(m.ToolCalls) == 0 {
		b, _ := json.Marshal(m.Text)
		return b, nil
	}
	var blocks []anthropicBlock
	if m.Text != "" {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Text})
	}
	for _, p := range m.Parts {
		switch p.Type {
		case canon.PartText:
			blocks = append(blocks, anthropicBlock{Type: "text", Text: p.Text})
		case canon.PartImageURL:
			blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicImageSource{Type: "url", URL: p.ImageURL}})
		case canon.PartToolUse:
			var input map[string]any
			_ = json.Unmarshal([]byte(p.ArgumentsJSON), &input)
			id := p.ToolUseID
			if id == "" {
				id = synthesizeID("toolu")
			}
			blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: id, Name: p.ToolUseName, Input: input})
		case canon.PartToolResult:
			contentJSON, _ := json.Marshal(p.ToolResultContent)
			blocks = append(blocks, anthropicBlock{
				Type: "tool_result", ToolUseID: p.ToolResultID, ToolResultContent: contentJSON, IsError: p.ToolResultIsError,
			})
		}
	}
	// OpenAI-shape tool_calls on an assistant message become tool_use blocks.
	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &input)
		id := tc.ID
		if id == "" {
			id = synthesizeID("toolu")
		}
		blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: id, Name: tc.Name, Input: input})
	}
	// A role=tool OpenAI-shape message becomes a single tool_result block.
	if m.Role == canon.RoleTool && m.ToolCallID != "" {
		contentJSON, _ := json.Marshal(m.Text)
		blocks = append(blocks, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, ToolResultContent: contentJSON})
	}
	b, err := json.Marshal(blocks)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling anthropic content blocks")
	}
	return b, nil
}

// anthropicRole maps a canonical (possibly OpenAI-shape tool) role to the
// only two roles Anthropic/Bedrock messages carry.
func anthropicRole(r canon.Role) string {
	if r == canon.RoleTool {
		return "user"
	}
	return string(r)
}

// mergeAlternating enforces Anthropic/Bedrock's strict user/assistant
// alternation (§4.2): adjacent same-role messages are merged (so two
// assistant messages never end up adjacent), and an empty user message is
// injected before a leading assistant message so the sequence always
// alternates starting with user.
func mergeAlternating(messages []canon.Message) []canon.Message {
	var out []canon.Message
	for _, m := range messages {
		role := anthropicRole(m.Role)
		if len(out) > 0 && out[len(out)-1].Role == canon.Role(role) {
			prev := &out[len(out)-1]
			if m.Text != "" {
				if prev.Text != "" {
					prev.Text += "\n"
				}
				prev.Text += m.Text
			}
			prev.Parts = append(prev.Parts, m.Parts...)
			prev.ToolCalls = append(prev.ToolCalls, m.ToolCalls...)
			continue
		}
		cp := m
		cp.Role = canon.Role(role)
		if len(out) == 0 && role == "assistant" {
			out = append(out, canon.Message{Role: canon.RoleUser, Text: ""})
		}
		out = append(out, cp)
	}
	return out
}

// ---------------------------------------------------------------------------
// Request decode/encode
// ---------------------------------------------------------------------------

func decodeAnthropicRequest(body []byte) (*canon.ChatRequest, error) {
	var wr anthropicRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Anthropic request body")
	}
	req := &canon.ChatRequest{
		Model: wr.Model, Stream: wr.Stream, Temperature: wr.Temperature, TopP: wr.TopP, Stop: wr.StopSequences,
		Passthrough: canon.ExtractPassthrough(body, anthropicRequestKnownKeys),
	}
	if wr.MaxTokens > 0 {
		mt := wr.MaxTokens
		req.MaxTokens = &mt
	}
	if wr.System != "" {
		req.Messages = append(req.Messages, canon.Message{Role: canon.RoleSystem, Text: wr.System})
	}
	for _, m := range wr.Messages {
		text, parts, err := decodeAnthropicContent(m.Content)
		if err != nil {
			return nil, err
		}
		msg := canon.Message{Role: canon.Role(m.Role), Text: text}
		for _, p := range parts {
			if p.Type == canon.PartToolUse {
				msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{ID: p.ToolUseID, Name: p.ToolUseName, ArgumentsJSON: p.ArgumentsJSON})
				continue
			}
			if p.Type == canon.PartToolResult {
				msg.Role = canon.RoleTool
				msg.ToolCallID = p.ToolResultID
				msg.Text = p.ToolResultContent
				continue
			}
			msg.Parts = append(msg.Parts, p)
		}
		req.Messages = append(req.Messages, msg)
	}
	for _, t := range wr.Tools {
		req.Tools = append(req.Tools, canon.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	if len(req.Messages) == 0 {
		return nil, canon.NewError(canon.KindBadRequest, "messages must not be empty")
	}
	return req, nil
}

func encodeAnthropicRequest(req *canon.ChatRequest, d Defaults) ([]byte, error) {
	maxTokens := d.MaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	wr := anthropicRequest{
		Model: req.Model, MaxTokens: maxTokens, System: req.FirstSystemText(),
		StopSequences: req.Stop, Stream: req.Stream, Temperature: req.Temperature, TopP: req.TopP,
	}
	merged := mergeAlternating(req.NonSystemMessages())
	for _, m := range merged {
		content, err := encodeAnthropicContent(m)
		if err != nil {
			return nil, err
		}
		wr.Messages = append(wr.Messages, anthropicMessage{Role: string(m.Role), Content: content})
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling anthropic request")
	}
	return canon.MergePassthrough(b, req.Passthrough), nil
}

// ---------------------------------------------------------------------------
// Response decode/encode
// ---------------------------------------------------------------------------

func decodeAnthropicResponse(body []byte) (*canon.ChatResponse, error) {
	var wr anthropicResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Anthropic response body")
	}
	msg := canon.Message{Role: canon.RoleAssistant}
	for _, b := range wr.Content {
		switch b.Type {
		case "text":
			msg.Text += b.Text
		case "tool_use":
			argsJSON, _ := json.Marshal(b.Input)
			msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{ID: b.ID, Name: b.Name, ArgumentsJSON: string(argsJSON)})
		}
	}
	finish := mapFinishReason(finishAnthropicToOpenAI, wr.StopReason)
	resp := &canon.ChatResponse{
		ID: wr.ID, Model: wr.Model,
		Usage: &canon.Usage{
			PromptTokens: wr.Usage.InputTokens, CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens: wr.Usage.InputTokens + wr.Usage.OutputTokens,
		},
		Choices:     []canon.Choice{{Index: 0, FinishReason: finish, Message: msg}},
		Passthrough: canon.ExtractPassthrough(body, anthropicResponseKnownKeys),
	}
	return resp, nil
}

func encodeAnthropicResponse(resp *canon.ChatResponse) ([]byte, error) {
	if len(resp.Choices) == 0 {
		return nil, canon.NewError(canon.KindInternalError, "response has no choices")
	}
	c := resp.Choices[0]
	wr := anthropicResponse{ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model}
	if c.Message.Text != "" {
		wr.Content = append(wr.Content, anthropicBlock{Type: "text", Text: c.Message.Text})
	}
	for _, tc := range c.Message.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &input)
		id := tc.ID
		if id == "" {
			id = synthesizeID("toolu")
		}
		wr.Content = append(wr.Content, anthropicBlock{Type: "tool_use", ID: id, Name: tc.Name, Input: input})
	}
	wr.StopReason = mapFinishReason(finishOpenAIToAnthropic, c.FinishReason)
	if resp.Usage != nil {
		wr.Usage = anthropicUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling anthropic response")
	}
	return canon.MergePassthrough(b, resp.Passthrough), nil
}
