package translate

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// ---------------------------------------------------------------------------
// OpenAI Responses API wire shapes
//
// The Responses API flattens chat history into a single "input" array of
// typed items instead of Chat Completions' role+content message list, and
// returns an "output" array of items instead of "choices". The gateway maps
// message items 1:1 onto canon.Message and flattens function_call/
// function_call_output items onto the same canonical tool-call shape Chat
// Completions uses.
// ---------------------------------------------------------------------------

type responsesRequest struct {
	Model           string          `json:"model"`
	Input           []responsesItem `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Tools           []responsesTool `json:"tools,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
}

type responsesItem struct {
	Type string `json:"type"`

	// type == "message"
	Role    string             `json:"role,omitempty"`
	Content []responsesContent `json:"content,omitempty"`

	// type == "function_call"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// type == "function_call_output"
	Output string `json:"output,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type responsesResponse struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Output []responsesItem `json:"output"`
	Usage  *responsesUsage `json:"usage,omitempty"`
	Status string          `json:"status,omitempty"`
}

type responsesUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
	TotalTokens  uint32 `json:"total_tokens"`
}

// responsesRequestKnownKeys/responsesResponseKnownKeys name every top-level
// field the structs above already handle (§4.1).
var responsesRequestKnownKeys = map[string]bool{
	"model": true, "input": true, "instructions": true, "tools": true,
	"stream": true, "temperature": true, "top_p": true, "max_output_tokens": true,
}

var responsesResponseKnownKeys = map[string]bool{
	"id": true, "model": true, "output": true, "usage": true, "status": true,
}

func decodeResponsesRequest(body []byte) (*canon.ChatRequest, error) {
	var wr responsesRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Responses request body")
	}
	req := &canon.ChatRequest{
		Model: wr.Model, Stream: wr.Stream, Temperature: wr.Temperature, TopP: wr.TopP, MaxTokens: wr.MaxOutputTokens,
		Passthrough: canon.ExtractPassthrough(body, responsesRequestKnownKeys),
	}
	if wr.Instructions != "" {
		req.Messages = append(req.Messages, canon.Message{Role: canon.RoleSystem, Text: wr.Instructions})
	}
	for _, item := range wr.Input {
		switch item.Type {
		case "message", "":
			text := ""
			for _, c := range item.Content {
				text += c.Text
			}
			req.Messages = append(req.Messages, canon.Message{Role: canon.Role(item.Role), Text: text})
		case "function_call":
			req.Messages = append(req.Messages, canon.Message{
				Role: canon.RoleAssistant,
				ToolCalls: []canon.ToolCall{{ID: item.CallID, Name: item.Name, ArgumentsJSON: item.Arguments}},
			})
		case "function_call_output":
			req.Messages = append(req.Messages, canon.Message{Role: canon.RoleTool, ToolCallID: item.CallID, Text: item.Output})
		}
	}
	for _, t := range wr.Tools {
		req.Tools = append(req.Tools, canon.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	if len(req.Messages) == 0 {
		return nil, canon.NewError(canon.KindBadRequest, "input must not be empty")
	}
	return req, nil
}

func encodeResponsesRequest(req *canon.ChatRequest, d Defaults) ([]byte, error) {
	wr := responsesRequest{
		Model: req.Model, Stream: req.Stream, Temperature: req.Temperature, TopP: req.TopP,
		Instructions: req.FirstSystemText(), MaxOutputTokens: req.MaxTokens,
	}
	for _, m := range req.NonSystemMessages() {
		if len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				id := tc.ID
				if id == "" {
					id = synthesizeID("call")
				}
				wr.Input = append(wr.Input, responsesItem{Type: "function_call", CallID: id, Name: tc.Name, Arguments: tc.ArgumentsJSON})
			}
			continue
		}
		if m.Role == canon.RoleTool {
			wr.Input = append(wr.Input, responsesItem{Type: "function_call_output", CallID: m.ToolCallID, Output: m.Text})
			continue
		}
		text := m.Text
		if text == "" {
			for _, p := range m.Parts {
				if p.Type == canon.PartText {
					text += p.Text
				}
			}
		}
		wr.Input = append(wr.Input, responsesItem{
			Type: "message", Role: string(m.Role), Content: []responsesContent{{Type: "input_text", Text: text}},
		})
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, responsesTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling responses request")
	}
	return canon.MergePassthrough(b, req.Passthrough), nil
}

func decodeResponsesResponse(body []byte) (*canon.ChatResponse, error) {
	var wr responsesResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Responses response body")
	}
	msg := canon.Message{Role: canon.RoleAssistant}
	finish := "stop"
	for _, item := range wr.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				msg.Text += c.Text
			}
		case "function_call":
			finish = "tool_calls"
			msg.ToolCalls = append(msg.ToolCalls, canon.ToolCall{ID: item.CallID, Name: item.Name, ArgumentsJSON: item.Arguments})
		}
	}
	resp := &canon.ChatResponse{
		ID: wr.ID, Model: wr.Model, Choices: []canon.Choice{{Index: 0, FinishReason: finish, Message: msg}},
		Passthrough: canon.ExtractPassthrough(body, responsesResponseKnownKeys),
	}
	if wr.Usage != nil {
		resp.Usage = &canon.Usage{
			PromptTokens: wr.Usage.InputTokens, CompletionTokens: wr.Usage.OutputTokens, TotalTokens: wr.Usage.TotalTokens,
		}
	}
	return resp, nil
}

func encodeResponsesResponse(resp *canon.ChatResponse) ([]byte, error) {
	if len(resp.Choices) == 0 {
		return nil, canon.NewError(canon.KindInternalError, "response has no choices")
	}
	c := resp.Choices[0]
	wr := responsesResponse{ID: resp.ID, Model: resp.Model, Status: "completed"}
	if c.Message.Text != "" {
		wr.Output = append(wr.Output, responsesItem{
			Type: "message", Role: "assistant", Content: []responsesContent{{Type: "output_text", Text: c.Message.Text}},
		})
	}
	for _, tc := range c.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = synthesizeID("call")
		}
		wr.Output = append(wr.Output, responsesItem{Type: "function_call", CallID: id, Name: tc.Name, Arguments: tc.ArgumentsJSON})
	}
	if resp.Usage != nil {
		wr.Usage = &responsesUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens}
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling responses response")
	}
	return canon.MergePassthrough(b, resp.Passthrough), nil
}
