package translate

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// ---------------------------------------------------------------------------
// Gemini generateContent wire shapes
// ---------------------------------------------------------------------------

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`

	InlineData *geminiInlineData `json:"inlineData,omitempty"`

	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`

	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     uint32 `json:"promptTokenCount"`
	CandidatesTokenCount uint32 `json:"candidatesTokenCount"`
	TotalTokenCount      uint32 `json:"totalTokenCount"`
}

// geminiRequestKnownKeys/geminiResponseKnownKeys name every top-level field
// the structs above already handle (§4.1).
var geminiRequestKnownKeys = map[string]bool{
	"contents": true, "systemInstruction": true, "tools": true, "generationConfig": true,
}

var geminiResponseKnownKeys = map[string]bool{
	"candidates": true, "usageMetadata": true, "modelVersion": true,
}

// ---------------------------------------------------------------------------
// content helpers
// ---------------------------------------------------------------------------

// geminiRoleFromCanonical maps a canonical role onto Gemini's two content
// roles: only "user" and "model" appear in Contents (system is pulled out
// into SystemInstruction separately, tool results ride along as a "user"
// turn carrying a functionResponse part, per §4.2).
func geminiRoleFromCanonical(r canon.Role) string {
	if r == canon.RoleAssistant {
		return "model"
	}
	return "user"
}

func canonicalRoleFromGemini(r string) canon.Role {
	if r == "model" {
		return canon.RoleAssistant
	}
	return canon.RoleUser
}

func decodeGeminiParts(parts []geminiPart) (text string, contentParts []canon.ContentPart, toolCalls []canon.ToolCall) {
	for _, p := range parts {
		switch {
		case p.Text != "":
			text += p.Text
		case p.InlineData != nil:
			contentParts = append(contentParts, canon.ContentPart{
				Type: canon.PartImageURL, ImageURL: "data:" + p.InlineData.MimeType + ";base64," + p.InlineData.Data,
			})
		case p.FunctionCall != nil:
			argsJSON, _ := json.Marshal(p.FunctionCall.Args)
			toolCalls = append(toolCalls, canon.ToolCall{
				ID: synthesizeID("call"), Name: p.FunctionCall.Name, ArgumentsJSON: string(argsJSON),
			})
		case p.FunctionResponse != nil:
			content, _ := json.Marshal(p.FunctionResponse.Response)
			contentParts = append(contentParts, canon.ContentPart{
				Type: canon.PartToolResult, ToolResultID: p.FunctionResponse.Name, ToolResultContent: string(content),
			})
		}
	}
	return text, contentParts, toolCalls
}

func encodeGeminiParts(m canon.Message) []geminiPart {
	var parts []geminiPart
	if m.Text != "" {
		parts = append(parts, geminiPart{Text: m.Text})
	}
	for _, p := range m.Parts {
		switch p.Type {
		case canon.PartText:
			parts = append(parts, geminiPart{Text: p.Text})
		case canon.PartImageURL:
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{Data: p.ImageURL}})
		case canon.PartToolResult:
			var response map[string]any
			if err := json.Unmarshal([]byte(p.ToolResultContent), &response); err != nil {
				response = map[string]any{"result": p.ToolResultContent}
			}
			parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{Name: p.ToolResultID, Response: response}})
		}
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &args)
		parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
	}
	if m.Role == canon.RoleTool && m.ToolCallID != "" {
		var response map[string]any
		if err := json.Unmarshal([]byte(m.Text), &response); err != nil {
			response = map[string]any{"result": m.Text}
		}
		parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{Name: m.ToolCallID, Response: response}})
	}
	if len(parts) == 0 {
		parts = append(parts, geminiPart{Text: ""})
	}
	return parts
}

// mergeGeminiAlternating enforces Gemini's user/model strict alternation the
// same way Anthropic/Bedrock require (§4.2).
func mergeGeminiAlternating(contents []geminiContent) []geminiContent {
	var out []geminiContent
	for _, c := range contents {
		if len(out) > 0 && out[len(out)-1].Role == c.Role {
			out[len(out)-1].Parts = append(out[len(out)-1].Parts, c.Parts...)
			continue
		}
		out = append(out, c)
	}
	return out
}

// ---------------------------------------------------------------------------
// Request decode/encode
// ---------------------------------------------------------------------------

func decodeGeminiRequest(body []byte) (*canon.ChatRequest, error) {
	var wr geminiRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Gemini request body")
	}
	req := &canon.ChatRequest{Passthrough: canon.ExtractPassthrough(body, geminiRequestKnownKeys)}
	if wr.SystemInstruction != nil {
		text, _, _ := decodeGeminiParts(wr.SystemInstruction.Parts)
		if text != "" {
			req.Messages = append(req.Messages, canon.Message{Role: canon.RoleSystem, Text: text})
		}
	}
	for _, c := range wr.Contents {
		text, parts, toolCalls := decodeGeminiParts(c.Parts)
		msg := canon.Message{Role: canonicalRoleFromGemini(c.Role), Text: text, ToolCalls: toolCalls}
		for _, p := range parts {
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
		for _, fd := range t.FunctionDeclarations {
			req.Tools = append(req.Tools, canon.ToolSchema{Name: fd.Name, Description: fd.Description, Parameters: fd.Parameters})
		}
	}
	if wr.GenerationConfig != nil {
		req.Temperature = wr.GenerationConfig.Temperature
		req.TopP = wr.GenerationConfig.TopP
		req.MaxTokens = wr.GenerationConfig.MaxOutputTokens
		req.Stop = wr.GenerationConfig.StopSequences
	}
	if len(req.Messages) == 0 {
		return nil, canon.NewError(canon.KindBadRequest, "contents must not be empty")
	}
	return req, nil
}

func encodeGeminiRequest(req *canon.ChatRequest, d Defaults) ([]byte, error) {
	wr := geminiRequest{}
	if sys := req.FirstSystemText(); sys != "" {
		wr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}
	var contents []geminiContent
	for _, m := range req.NonSystemMessages() {
		contents = append(contents, geminiContent{Role: geminiRoleFromCanonical(m.Role), Parts: encodeGeminiParts(m)})
	}
	wr.Contents = mergeGeminiAlternating(contents)
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{Name: t.Name, Description: t.Description, Parameters: geminiSchema(t.Parameters)})
		}
		wr.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		maxTokens := req.MaxTokens
		if maxTokens == nil {
			mt := d.MaxTokens
			maxTokens = &mt
		}
		wr.GenerationConfig = &geminiGenerationConfig{
			Temperature: req.Temperature, TopP: req.TopP, MaxOutputTokens: maxTokens, StopSequences: req.Stop,
		}
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling gemini request")
	}
	return canon.MergePassthrough(b, req.Passthrough), nil
}

// ---------------------------------------------------------------------------
// Response decode/encode
// ---------------------------------------------------------------------------

func decodeGeminiResponse(body []byte) (*canon.ChatResponse, error) {
	var wr geminiResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, canon.Wrap(canon.KindBadRequest, err, "invalid Gemini response body")
	}
	resp := &canon.ChatResponse{Model: wr.ModelVersion, Passthrough: canon.ExtractPassthrough(body, geminiResponseKnownKeys)}
	if wr.UsageMetadata != nil {
		resp.Usage = &canon.Usage{
			PromptTokens: wr.UsageMetadata.PromptTokenCount, CompletionTokens: wr.UsageMetadata.CandidatesTokenCount,
			TotalTokens: wr.UsageMetadata.TotalTokenCount,
		}
	}
	for _, c := range wr.Candidates {
		text, parts, toolCalls := decodeGeminiParts(c.Content.Parts)
		msg := canon.Message{Role: canon.RoleAssistant, Text: text, Parts: parts, ToolCalls: toolCalls}
		finish := mapFinishReason(geminiFinishToCanonical, c.FinishReason)
		resp.Choices = append(resp.Choices, canon.Choice{Index: c.Index, FinishReason: finish, Message: msg})
	}
	return resp, nil
}

func encodeGeminiResponse(resp *canon.ChatResponse) ([]byte, error) {
	wr := geminiResponse{ModelVersion: resp.Model}
	if resp.Usage != nil {
		wr.UsageMetadata = &geminiUsageMetadata{
			PromptTokenCount: resp.Usage.PromptTokens, CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount: resp.Usage.TotalTokens,
		}
	}
	for _, c := range resp.Choices {
		wr.Candidates = append(wr.Candidates, geminiCandidate{
			Content:      geminiContent{Role: "model", Parts: encodeGeminiParts(c.Message)},
			FinishReason: mapFinishReason(canonicalFinishToGemini, c.FinishReason),
			Index:        c.Index,
		})
	}
	b, err := json.Marshal(wr)
	if err != nil {
		return nil, canon.Wrap(canon.KindInternalError, err, "marshaling gemini response")
	}
	return canon.MergePassthrough(b, resp.Passthrough), nil
}
