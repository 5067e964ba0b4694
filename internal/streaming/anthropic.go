package streaming

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

type anthropicSSEEvent struct {
	Type         string                    `json:"type"`
	Index        int                       `json:"index"`
	Message      *anthropicSSEMessage      `json:"message,omitempty"`
	ContentBlock *anthropicSSEContentBlock `json:"content_block,omitempty"`
	Delta        *anthropicSSEDelta        `json:"delta,omitempty"`
	Usage        *anthropicSSEUsage        `json:"usage,omitempty"`
}

type anthropicSSEMessage struct {
	ID    string            `json:"id"`
	Model string            `json:"model"`
	Usage anthropicSSEUsage `json:"usage"`
}

type anthropicSSEContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type anthropicSSEDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type anthropicSSEUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// anthropicStopToOpenAI is the streaming counterpart of
// translate.finishAnthropicToOpenAI; unlike that table it also maps
// stop_sequence to stop. Kept as its own small table so this package
// doesn't need to import translate for one lookup.
var anthropicStopToOpenAI = map[string]string{
	"end_turn":      "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
	"stop_sequence": "stop",
}

var openAIFinishToAnthropicStop = map[string]string{
	"stop":       "end_turn",
	"length":     "max_tokens",
	"tool_calls": "tool_use",
}

// AnthropicDecoder turns Anthropic's named multi-event SSE sequence into
// canonical stream events. Anthropic spreads response metadata across
// message_start/content_block_start/content_block_delta/message_delta/
// message_stop, so the decoder carries id/model and open-block bookkeeping
// across Feed calls.
type AnthropicDecoder struct {
	id, model string
	blockKind map[int]string
}

func NewAnthropicDecoder() *AnthropicDecoder {
	return &AnthropicDecoder{blockKind: make(map[int]string)}
}

func (d *AnthropicDecoder) DecodeFrame(f Frame) ([]canon.StreamEvent, error) {
	if f.Data == "" {
		return nil, nil
	}
	var ev anthropicSSEEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return nil, canon.Wrap(canon.KindStreamError, err, "invalid Anthropic stream event")
	}

	switch ev.Type {
	case "message_start":
		if ev.Message == nil {
			return nil, nil
		}
		d.id, d.model = ev.Message.ID, ev.Message.Model
		return []canon.StreamEvent{{Kind: canon.EventRoleDelta, ID: d.id, Model: d.model, Role: canon.RoleAssistant}}, nil

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil, nil
		}
		d.blockKind[ev.Index] = ev.ContentBlock.Type
		if ev.ContentBlock.Type == "tool_use" {
			return []canon.StreamEvent{{
				Kind: canon.EventToolCallDelta, ID: d.id, Model: d.model,
				ToolCall: &canon.ToolCallDelta{BlockIndex: ev.Index, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name},
			}}, nil
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []canon.StreamEvent{{Kind: canon.EventContentDelta, ID: d.id, Model: d.model, ContentDelta: ev.Delta.Text}}, nil
		case "input_json_delta":
			return []canon.StreamEvent{{
				Kind: canon.EventToolCallDelta, ID: d.id, Model: d.model,
				ToolCall: &canon.ToolCallDelta{BlockIndex: ev.Index, ArgumentsDelta: ev.Delta.PartialJSON},
			}}, nil
		}
		return nil, nil

	case "content_block_stop":
		delete(d.blockKind, ev.Index)
		return nil, nil

	case "message_delta":
		var events []canon.StreamEvent
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			reason := ev.Delta.StopReason
			if mapped, ok := anthropicStopToOpenAI[reason]; ok {
				reason = mapped
			}
			events = append(events, canon.StreamEvent{Kind: canon.EventFinish, ID: d.id, Model: d.model, FinishReason: reason})
		}
		if ev.Usage != nil {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventUsageDelta, ID: d.id, Model: d.model,
				Usage: &canon.Usage{CompletionTokens: ev.Usage.OutputTokens, TotalTokens: ev.Usage.OutputTokens},
			})
		}
		return events, nil

	case "message_stop":
		return []canon.StreamEvent{{Kind: canon.EventDone, ID: d.id, Model: d.model}}, nil

	default: // ping, content_block_start for unsupported block types, etc.
		return nil, nil
	}
}

// AnthropicEncoder renders canonical stream events as Anthropic's named SSE
// event sequence, reconstructing message_start/content_block_*/message_delta/
// message_stop framing regardless of which upstream family produced the
// canonical events — translation runs symmetrically in both directions
// through the same hub.
type AnthropicEncoder struct {
	started       bool
	textBlockOpen bool
	toolBlockOpen map[int]bool
	pendingStop   string
	finishPending bool
}

func NewAnthropicEncoder() *AnthropicEncoder {
	return &AnthropicEncoder{toolBlockOpen: make(map[int]bool)}
}

func (e *AnthropicEncoder) EncodeEvent(ev canon.StreamEvent) []byte {
	var out []byte
	write := func(name string, payload map[string]any) {
		payload["type"] = name
		b, _ := json.Marshal(payload)
		out = append(out, []byte("event: "+name+"\ndata: ")...)
		out = append(out, b...)
		out = append(out, []byte("\n\n")...)
	}

	switch ev.Kind {
	case canon.EventRoleDelta:
		if !e.started {
			e.started = true
			write("message_start", map[string]any{
				"message": map[string]any{
					"id": ev.ID, "type": "message", "role": "assistant", "model": ev.Model,
					"content": []any{}, "usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
				},
			})
		}
	case canon.EventContentDelta:
		if !e.textBlockOpen {
			e.textBlockOpen = true
			write("content_block_start", map[string]any{"index": 0, "content_block": map[string]any{"type": "text", "text": ""}})
		}
		write("content_block_delta", map[string]any{"index": 0, "delta": map[string]any{"type": "text_delta", "text": ev.ContentDelta}})
	case canon.EventToolCallDelta:
		idx := ev.ToolCall.BlockIndex
		if !e.toolBlockOpen[idx] {
			e.toolBlockOpen[idx] = true
			write("content_block_start", map[string]any{
				"index": idx, "content_block": map[string]any{"type": "tool_use", "id": ev.ToolCall.ID, "name": ev.ToolCall.Name, "input": map[string]any{}},
			})
		}
		if ev.ToolCall.ArgumentsDelta != "" {
			write("content_block_delta", map[string]any{"index": idx, "delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ToolCall.ArgumentsDelta}})
		}
	case canon.EventFinish:
		if e.textBlockOpen {
			write("content_block_stop", map[string]any{"index": 0})
			e.textBlockOpen = false
		}
		for idx := range e.toolBlockOpen {
			write("content_block_stop", map[string]any{"index": idx})
			delete(e.toolBlockOpen, idx)
		}
		reason := ev.FinishReason
		if mapped, ok := openAIFinishToAnthropicStop[reason]; ok {
			reason = mapped
		}
		e.pendingStop = reason
		e.finishPending = true
	case canon.EventUsageDelta:
		outputTokens := uint32(0)
		if ev.Usage != nil {
			outputTokens = ev.Usage.CompletionTokens
		}
		write("message_delta", map[string]any{"delta": map[string]any{"stop_reason": e.pendingStop}, "usage": map[string]any{"output_tokens": outputTokens}})
		e.finishPending = false
	case canon.EventDone:
		if e.finishPending {
			write("message_delta", map[string]any{"delta": map[string]any{"stop_reason": e.pendingStop}, "usage": map[string]any{"output_tokens": 0}})
			e.finishPending = false
		}
		write("message_stop", map[string]any{})
	case canon.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		write("error", map[string]any{"error": map[string]any{"type": "stream_error", "message": msg}})
	}
	return out
}
