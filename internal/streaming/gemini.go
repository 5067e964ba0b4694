package streaming

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// Gemini's streamGenerateContent SSE events are self-contained: each "data:"
// line carries one full GenerateContentResponse-shaped chunk whose parts
// are the incremental fragment generated since the previous chunk — unlike
// Anthropic, there's no separate start/stop event envelope.

type geminiStreamChunk struct {
	Candidates    []geminiStreamCandidate `json:"candidates"`
	UsageMetadata *geminiStreamUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string                  `json:"modelVersion,omitempty"`
}

type geminiStreamCandidate struct {
	Content      geminiStreamContent `json:"content"`
	FinishReason string              `json:"finishReason,omitempty"`
	Index        int                 `json:"index"`
}

type geminiStreamContent struct {
	Role  string             `json:"role,omitempty"`
	Parts []geminiStreamPart `json:"parts"`
}

type geminiStreamPart struct {
	Text         string                    `json:"text,omitempty"`
	FunctionCall *geminiStreamFunctionCall `json:"functionCall,omitempty"`
}

type geminiStreamFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiStreamUsage struct {
	PromptTokenCount     uint32 `json:"promptTokenCount"`
	CandidatesTokenCount uint32 `json:"candidatesTokenCount"`
	TotalTokenCount      uint32 `json:"totalTokenCount"`
}

var geminiFinishToOpenAI = map[string]string{
	"STOP": "stop", "MAX_TOKENS": "length", "SAFETY": "content_filter", "RECITATION": "content_filter",
}

var openAIFinishToGemini = map[string]string{
	"stop": "STOP", "length": "MAX_TOKENS", "tool_calls": "STOP", "content_filter": "SAFETY",
}

// GeminiDecoder decodes Gemini's streaming chunks. Gemini never returns a
// response id, so every event carries the id supplied to NewGeminiDecoder,
// since every downstream canon.StreamEvent and SSE target framing needs one.
type GeminiDecoder struct {
	id          string
	toolCallSeq int
}

func NewGeminiDecoder(id string) *GeminiDecoder {
	return &GeminiDecoder{id: id}
}

func (d *GeminiDecoder) DecodeFrame(f Frame) ([]canon.StreamEvent, error) {
	if f.Data == "" {
		return nil, nil
	}
	var c geminiStreamChunk
	if err := json.Unmarshal([]byte(f.Data), &c); err != nil {
		return nil, canon.Wrap(canon.KindStreamError, err, "invalid Gemini stream chunk")
	}
	var events []canon.StreamEvent
	for _, cand := range c.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				events = append(events, canon.StreamEvent{
					Kind: canon.EventContentDelta, ChoiceIndex: cand.Index, ID: d.id, Model: c.ModelVersion, ContentDelta: p.Text,
				})
			}
			if p.FunctionCall != nil {
				argsJSON, _ := json.Marshal(p.FunctionCall.Args)
				events = append(events, canon.StreamEvent{
					Kind: canon.EventToolCallDelta, ChoiceIndex: cand.Index, ID: d.id, Model: c.ModelVersion,
					ToolCall: &canon.ToolCallDelta{BlockIndex: d.toolCallSeq, Name: p.FunctionCall.Name, ArgumentsDelta: string(argsJSON)},
				})
				d.toolCallSeq++
			}
		}
		if cand.FinishReason != "" {
			reason := cand.FinishReason
			if mapped, ok := geminiFinishToOpenAI[reason]; ok {
				reason = mapped
			}
			events = append(events, canon.StreamEvent{Kind: canon.EventFinish, ChoiceIndex: cand.Index, ID: d.id, Model: c.ModelVersion, FinishReason: reason})
		}
	}
	if c.UsageMetadata != nil {
		events = append(events, canon.StreamEvent{
			Kind: canon.EventUsageDelta, ID: d.id, Model: c.ModelVersion,
			Usage: &canon.Usage{
				PromptTokens: c.UsageMetadata.PromptTokenCount, CompletionTokens: c.UsageMetadata.CandidatesTokenCount,
				TotalTokens: c.UsageMetadata.TotalTokenCount,
			},
		})
	}
	return events, nil
}

// GeminiEncoder renders canonical stream events in Gemini's chunk shape.
// Gemini has no terminal sentinel on the wire; EventDone produces no bytes
// (the HTTP response simply ends), matching the real API's behavior.
type GeminiEncoder struct{}

func NewGeminiEncoder() *GeminiEncoder { return &GeminiEncoder{} }

func (e *GeminiEncoder) EncodeEvent(ev canon.StreamEvent) []byte {
	switch ev.Kind {
	case canon.EventRoleDelta, canon.EventDone:
		return nil
	case canon.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		b, _ := json.Marshal(map[string]any{"error": map[string]any{"message": msg}})
		return formatSSE(b)
	}

	chunk := geminiStreamChunk{ModelVersion: ev.Model}
	cand := geminiStreamCandidate{Index: ev.ChoiceIndex}
	switch ev.Kind {
	case canon.EventContentDelta:
		cand.Content = geminiStreamContent{Role: "model", Parts: []geminiStreamPart{{Text: ev.ContentDelta}}}
	case canon.EventToolCallDelta:
		var args map[string]any
		_ = json.Unmarshal([]byte(ev.ToolCall.ArgumentsDelta), &args)
		cand.Content = geminiStreamContent{Role: "model", Parts: []geminiStreamPart{{FunctionCall: &geminiStreamFunctionCall{Name: ev.ToolCall.Name, Args: args}}}}
	case canon.EventFinish:
		reason := ev.FinishReason
		if mapped, ok := openAIFinishToGemini[reason]; ok {
			reason = mapped
		}
		cand.FinishReason = reason
	case canon.EventUsageDelta:
		chunk.UsageMetadata = &geminiStreamUsage{
			PromptTokenCount: ev.Usage.PromptTokens, CandidatesTokenCount: ev.Usage.CompletionTokens, TotalTokenCount: ev.Usage.TotalTokens,
		}
		b, _ := json.Marshal(chunk)
		return formatSSE(b)
	}
	chunk.Candidates = []geminiStreamCandidate{cand}
	b, _ := json.Marshal(chunk)
	return formatSSE(b)
}
