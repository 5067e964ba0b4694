package translate

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// ---------------------------------------------------------------------------
// OpenAI Chat Completions wire shapes
// ---------------------------------------------------------------------------

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Logprobs    bool            `json:"logprobs,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolCallFunc `json:"function"`
}

type openaiToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiToolDecl `json:"function"`
}

type openaiToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// openaiContentPart covers the multimodal array-content shape:
// [{"type":"text","text":"..."},{"type":"image_url","image_url":{"url":"..."}}]
type openaiContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// openaiRequestKnownKeys/openaiResponseKnownKeys name every top-level field
// the structs above already handle, so canon.ExtractPassthrough can find
// what's left over (§4.1).
var openaiRequestKnownKeys = map[string]bool{
	"model": true, "messages": true, "tools": true, "tool_choice": true,
	"stream": true, "temperature": true, "top_p": true, "max_tokens": true,
	"stop": true, "logprobs": true,
}

var openaiResponseKnownKeys = map[string]bool{
	"id": true, "object": true, "created": true, "model": true, "choices": true, "usage": true,
}

// ---------------------------------------------------------------------------
// content helpers: OpenAI content is either a bare string or an array of
// typed parts — decode/encode both directions.
// ---------------------------------------------------------------------------

func decodeOpenAIContent(raw json.RawMessage) (text string, parts []canon.ContentPart, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, nil
	}
	var arr []openaiContentPart
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", nil, canon.NewError(canon.KindBadRequest, "message content must be a string or array of parts")
	}
	parts = make([]canon.ContentPart, 0, len(arr))
	for _, p := range arr {
		switch p.Type {
		case "text":
			parts = append(parts, canon.ContentPart{Type: canon.PartText, Text: p.Text})
		case "image_url":
			url := ""
			if p.ImageURL != nil {
				url = p.ImageURL.URL
			}
			parts = append(parts, canon.ContentPart{Type: canon.PartImageURL, ImageURL: url})
		}
	}
	return "", parts, nil
}

func encodeOpenAIContent(m canon.Message) json.RawMessage {
	if len(m.Parts) == 0 {
		b, _ := json.Marshal(m.Text)
		return b
	}
	parts := make([]openaiContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case canon.PartText:
			parts = append(parts, openaiContentPart{Type: "text", Text: p.Text})
		case canon.PartImageURL:
			parts = append(parts, openaiContentPart{Type: "image_url", ImageURL: &struct {
				URL string `json:"url"`
			}{URL: p.ImageURL}})
		}
	}
	b, _ := json.Marshal(parts)
	return b
}

// ---------------------------------------------------------------------------
// Request decode/encode
// ---------------------------------------------------------------------------

func decodeOpenAIRequest(body []byte) (*canon.ChatRequest, error) {
	var wr openaiRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid OpenAI request body")
	}
	req := &canon.ChatRequest{
		Model:       wr.Model,
		Stream:      wr.Stream,
		Temperature: wr.Temperature,
		TopP:        wr.TopP,
		MaxTokens:   wr.MaxTokens,
		Stop:        wr.Stop,
		ToolChoice:  wr.ToolChoice,
		Logprobs:    wr.Logprobs,
		Passthrough: canon.ExtractPassthrough(body, openaiRequestKnownKeys),
	}
	for _, m := range wr.Messages {
		text, parts, err := decodeOpenAIContent(m.Content)
		if err != nil {
			return nil, err
		}
		msg := canon.Message{
			Role:       canon.Role(m.Role),
			Text:       text,
			Parts:      parts,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{
				ID: tc.ID, Name: tc.Function.Name, ArgumentsJSON: tc.Function.Arguments,
			})
		}
		req.Messages = append(req.Messages, msg)
	}
	for _, t := range wr.Tools {
		req.Tools = append(req.Tools, canon.ToolSchema{
			Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters,
		})
	}
	if len(req.Messages) == 0 {
		return nil, canon.NewError(canon.KindBadRequest, "messages must not be empty")
	}
	return req, nil
}

func encodeOpenAIRequest(req *canon.ChatRequest, d Defaults) ([]byte, error) {
	wr := openaiRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		ToolChoice:  req.ToolChoice,
		Logprobs:    req.Logprobs,
	}
	for _, m := range req.Messages {
		wm := openaiMessage{
			Role:       string(m.Role),
			Content:    encodeOpenAIContent(m),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			id := tc.ID
			if id == "" {
				id = synthesizeID("call")
			}
			wm.ToolCalls = append(wm.ToolCalls, openaiToolCall{
				ID: id, Type: "function",
				Function: openaiToolCallFunc{Name: tc.Name, Arguments: tc.ArgumentsJSON},
			})
		}
		wr.Messages = append(wr.Messages, wm)
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, openaiTool{
			Type: "function",
			Function: openaiToolDecl{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			},
		})
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling OpenAI request")
	}
	return canon.MergePassthrough(b, req.Passthrough), nil
}

// ---------------------------------------------------------------------------
// Response decode/encode
// ---------------------------------------------------------------------------

func decodeOpenAIResponse(body []byte) (*canon.ChatResponse, error) {
	var wr openaiResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid OpenAI response body")
	}
	resp := &canon.ChatResponse{
		ID: wr.ID, Created: wr.Created, Model: wr.Model,
		Passthrough: canon.ExtractPassthrough(body, openaiResponseKnownKeys),
	}
	if wr.Usage != nil {
		resp.Usage = &canon.Usage{
			PromptTokens: wr.Usage.PromptTokens, CompletionTokens: wr.Usage.CompletionTokens, TotalTokens: wr.Usage.TotalTokens,
		}
	}
	for _, c := range wr.Choices {
		text, parts, err := decodeOpenAIContent(c.Message.Content)
		if err != nil {
			return nil, err
		}
		msg := canon.Message{Role: canon.Role(c.Message.Role), Text: text, Parts: parts}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{ID: tc.ID, Name: tc.Function.Name, ArgumentsJSON: tc.Function.Arguments})
		}
		resp.Choices = append(resp.Choices, canon.Choice{Index: c.Index, FinishReason: c.FinishReason, Message: msg})
	}
	return resp, nil
}

func encodeOpenAIResponse(resp *canon.ChatResponse) ([]byte, error) {
	wr := openaiResponse{ID: resp.ID, Object: "chat.completion", Created: resp.Created, Model: resp.Model}
	if resp.Usage != nil {
		wr.Usage = &openaiUsage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens}
	}
	for _, c := range resp.Choices {
		wm := openaiMessage{Role: string(c.Message.Role), Content: encodeOpenAIContent(c.Message)}
		for _, tc := range c.Message.ToolCalls {
			id := tc.ID
			if id == "" {
				id = synthesizeID("call")
			}
			wm.ToolCalls = append(wm.ToolCalls, openaiToolCall{
				ID: id, Type: "function", Function: openaiToolCallFunc{Name: tc.Name, Arguments: tc.ArgumentsJSON},
			})
		}
		wr.Choices = append(wr.Choices, openaiChoice{Index: c.Index, Message: wm, FinishReason: c.FinishReason})
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling OpenAI response")
	}
	return canon.MergePassthrough(b, resp.Passthrough), nil
}
