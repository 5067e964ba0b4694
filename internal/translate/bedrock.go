package translate

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// Bedrock's InvokeModel body for Anthropic Claude models on Bedrock is the
// same Messages-API shape Anthropic's own API uses, minus the top-level
// "model" field (the model is in the URL path) and plus a required
// "anthropic_version" field (§4.2). The gateway reuses the Anthropic wire
// structs and only adjusts the envelope.

type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
}

type bedrockResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

// bedrockRequestKnownKeys/bedrockResponseKnownKeys name every top-level field
// the structs above already handle (§4.1). Bedrock's request envelope swaps
// Anthropic's "model" for "anthropic_version", so it needs its own set.
var bedrockRequestKnownKeys = map[string]bool{
	"anthropic_version": true, "max_tokens": true, "system": true, "messages": true,
	"tools": true, "stop_sequences": true, "temperature": true, "top_p": true,
}

var bedrockResponseKnownKeys = map[string]bool{
	"id": true, "type": true, "role": true, "content": true, "model": true, "stop_reason": true, "usage": true,
}

func decodeBedrockRequest(body []byte) (*canon.ChatRequest, error) {
	var wr bedrockRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Bedrock request body")
	}
	req := &canon.ChatRequest{
		Temperature: wr.Temperature, TopP: wr.TopP, Stop: wr.StopSequences,
		Passthrough: canon.ExtractPassthrough(body, bedrockRequestKnownKeys),
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
			switch p.Type {
			case canon.PartToolUse:
				msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{ID: p.ToolUseID, Name: p.ToolUseName, ArgumentsJSON: p.ArgumentsJSON})
			case canon.PartToolResult:
				msg.Role = canon.RoleTool
				msg.ToolCallID = p.ToolResultID
				msg.Text = p.ToolResultContent
			default:
				msg.Parts = append(msg.Parts, p)
			}
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

// encodeBedrockRequest omits Model (Bedrock routes by URL path, assembled
// by internal/pipeline's upstreamPath from the resolved model) and stamps the
// required anthropic_version field from Defaults (§4.2, §6.4).
func encodeBedrockRequest(req *canon.ChatRequest, d Defaults) ([]byte, error) {
	maxTokens := d.MaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	version := d.AnthropicVersion
	if version == "" {
		version = "bedrock-2023-05-31"
	}
	wr := bedrockRequest{
		AnthropicVersion: version, MaxTokens: maxTokens, System: req.FirstSystemText(),
		StopSequences: req.Stop, Temperature: req.Temperature, TopP: req.TopP,
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
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling bedrock request")
	}
	return canon.MergePassthrough(b, req.Passthrough), nil
}

func decodeBedrockResponse(body []byte) (*canon.ChatResponse, error) {
	var wr bedrockResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Bedrock response body")
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
		Passthrough: canon.ExtractPassthrough(body, bedrockResponseKnownKeys),
	}
	return resp, nil
}

func encodeBedrockResponse(resp *canon.ChatResponse) ([]byte, error) {
	if len(resp.Choices) == 0 {
		return nil, canon.NewError(canon.KindInternalError, "response has no choices")
	}
	c := resp.Choices[0]
	wr := bedrockResponse{ID: resp.ID, Type: "message", Role: "assistant", Model: resp.Model}
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
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling bedrock response")
	}
	return canon.MergePassthrough(b, resp.Passthrough), nil
}
