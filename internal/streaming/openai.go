package streaming

import (
	"bytes"
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiStreamUsage   `json:"usage,omitempty"`
}

type openaiStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type openaiStreamDelta struct {
	Role      string                 `json:"role,omitempty"`
	Content   string                 `json:"content,omitempty"`
	ToolCalls []openaiStreamToolCall `json:"tool_calls,omitempty"`
}

type openaiStreamToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

type openaiStreamUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// OpenAIDecoder turns OpenAI Chat Completions SSE chunks into canonical
// stream events. It carries no cross-frame state: every OpenAI chunk is
// already self-describing, unlike Anthropic's named multi-event sequence.
type OpenAIDecoder struct{}

func NewOpenAIDecoder() *OpenAIDecoder { return &OpenAIDecoder{} }

// DecodeFrame implements Decoder. The "[DONE]" sentinel (§3.1, §4.4) is not
// JSON and is recognized before attempting to unmarshal.
func (d *OpenAIDecoder) DecodeFrame(f Frame) ([]canon.StreamEvent, error) {
	if f.Data == "" {
		return nil, nil
	}
	if f.Data == "[DONE]" {
		return []canon.StreamEvent{{Kind: canon.EventDone}}, nil
	}
	var c openaiStreamChunk
	if err := json.Unmarshal([]byte(f.Data), &c); err != nil {
		return nil, canon.Wrap(canon.KindStreamError, err, "invalid OpenAI stream chunk")
	}
	var events []canon.StreamEvent
	for _, choice := range c.Choices {
		if choice.Delta.Role != "" {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventRoleDelta, ChoiceIndex: choice.Index, ID: c.ID, Model: c.Model, Role: canon.Role(choice.Delta.Role),
			})
		}
		if choice.Delta.Content != "" {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventContentDelta, ChoiceIndex: choice.Index, ID: c.ID, Model: c.Model, ContentDelta: choice.Delta.Content,
			})
		}
		for _, tc := range choice.Delta.ToolCalls {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventToolCallDelta, ChoiceIndex: choice.Index, ID: c.ID, Model: c.Model,
				ToolCall: &canon.ToolCallDelta{BlockIndex: tc.Index, ID: tc.ID, Name: tc.Function.Name, ArgumentsDelta: tc.Function.Arguments},
			})
		}
		if choice.FinishReason != nil {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventFinish, ChoiceIndex: choice.Index, ID: c.ID, Model: c.Model, FinishReason: *choice.FinishReason,
			})
		}
	}
	if c.Usage != nil {
		events = append(events, canon.StreamEvent{
			Kind: canon.EventUsageDelta, ID: c.ID, Model: c.Model,
			Usage: &canon.Usage{PromptTokens: c.Usage.PromptTokens, CompletionTokens: c.Usage.CompletionTokens, TotalTokens: c.Usage.TotalTokens},
		})
	}
	return events, nil
}

// OpenAIEncoder renders canonical stream events as OpenAI-compatible SSE
// chunks, one "data: {...}\n\n" frame per event — the same framing the
// teacher's stream.Write hand-rolled, generalized to every event kind
// instead of just content/finish.
type OpenAIEncoder struct{}

func NewOpenAIEncoder() *OpenAIEncoder { return &OpenAIEncoder{} }

func (e *OpenAIEncoder) EncodeEvent(ev canon.StreamEvent) []byte {
	if ev.Kind == canon.EventDone {
		return []byte("data: [DONE]\n\n")
	}
	if ev.Kind == canon.EventError {
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		b, _ := json.Marshal(map[string]any{"error": map[string]any{"message": msg, "type": "stream_error"}})
		return append(append([]byte("data: "), b...), []byte("\n\n")...)
	}

	chunk := openaiStreamChunk{ID: ev.ID, Model: ev.Model}
	choice := openaiStreamChoice{Index: ev.ChoiceIndex}

	switch ev.Kind {
	case canon.EventRoleDelta:
		choice.Delta.Role = string(ev.Role)
	case canon.EventContentDelta:
		choice.Delta.Content = ev.ContentDelta
	case canon.EventToolCallDelta:
		choice.Delta.ToolCalls = []openaiStreamToolCall{{
			Index: ev.ToolCall.BlockIndex, ID: ev.ToolCall.ID, Type: "function",
		}}
		choice.Delta.ToolCalls[0].Function.Name = ev.ToolCall.Name
		choice.Delta.ToolCalls[0].Function.Arguments = ev.ToolCall.ArgumentsDelta
	case canon.EventFinish:
		reason := ev.FinishReason
		choice.FinishReason = &reason
	case canon.EventUsageDelta:
		chunk.Usage = &openaiStreamUsage{PromptTokens: ev.Usage.PromptTokens, CompletionTokens: ev.Usage.CompletionTokens, TotalTokens: ev.Usage.TotalTokens}
		b, _ := json.Marshal(chunk)
		return formatSSE(b)
	}
	chunk.Choices = []openaiStreamChoice{choice}
	b, _ := json.Marshal(chunk)
	return formatSSE(b)
}

func formatSSE(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes()
}
