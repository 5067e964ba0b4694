package streaming

import (
	"encoding/json"

	"github.com/llmgw/llmgateway/internal/canon"
)

// The Responses API streams named SSE events — response.output_text.delta,
// response.function_call_arguments.delta, response.completed — rather than
// OpenAI Chat Completions' single self-describing chunk shape.

type responsesSSEEvent struct {
	Type     string                    `json:"type"`
	ItemID   string                    `json:"item_id,omitempty"`
	Delta    string                    `json:"delta,omitempty"`
	Response *responsesSSEResponseBody `json:"response,omitempty"`
}

type responsesSSEResponseBody struct {
	ID    string             `json:"id"`
	Model string             `json:"model"`
	Usage *responsesSSEUsage `json:"usage,omitempty"`
}

type responsesSSEUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
	TotalTokens  uint32 `json:"total_tokens"`
}

type ResponsesDecoder struct {
	id, model string
}

func NewResponsesDecoder() *ResponsesDecoder { return &ResponsesDecoder{} }

func (d *ResponsesDecoder) DecodeFrame(f Frame) ([]canon.StreamEvent, error) {
	if f.Data == "" {
		return nil, nil
	}
	var ev responsesSSEEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return nil, canon.Wrap(canon.KindStreamError, err, "invalid Responses stream event")
	}
	switch ev.Type {
	case "response.created":
		if ev.Response != nil {
			d.id, d.model = ev.Response.ID, ev.Response.Model
			return []canon.StreamEvent{{Kind: canon.EventRoleDelta, ID: d.id, Model: d.model, Role: canon.RoleAssistant}}, nil
		}
	case "response.output_text.delta":
		return []canon.StreamEvent{{Kind: canon.EventContentDelta, ID: d.id, Model: d.model, ContentDelta: ev.Delta}}, nil
	case "response.function_call_arguments.delta":
		return []canon.StreamEvent{{
			Kind: canon.EventToolCallDelta, ID: d.id, Model: d.model,
			ToolCall: &canon.ToolCallDelta{ID: ev.ItemID, ArgumentsDelta: ev.Delta},
		}}, nil
	case "response.completed":
		var events []canon.StreamEvent
		events = append(events, canon.StreamEvent{Kind: canon.EventFinish, ID: d.id, Model: d.model, FinishReason: "stop"})
		if ev.Response != nil && ev.Response.Usage != nil {
			events = append(events, canon.StreamEvent{
				Kind: canon.EventUsageDelta, ID: d.id, Model: d.model,
				Usage: &canon.Usage{
					PromptTokens: ev.Response.Usage.InputTokens, CompletionTokens: ev.Response.Usage.OutputTokens, TotalTokens: ev.Response.Usage.TotalTokens,
				},
			})
		}
		events = append(events, canon.StreamEvent{Kind: canon.EventDone, ID: d.id, Model: d.model})
		return events, nil
	}
	return nil, nil
}

// ResponsesEncoder buffers the response id/model and any usage seen so far
// so that response.completed — the Responses API's terminal event — can be
// emitted unconditionally from EventDone, whether or not an EventUsageDelta
// arrived first (a canonical stream guarantees Done, never Usage).
type ResponsesEncoder struct {
	id, model string
	usage     *canon.Usage
}

func NewResponsesEncoder() *ResponsesEncoder { return &ResponsesEncoder{} }

func (e *ResponsesEncoder) EncodeEvent(ev canon.StreamEvent) []byte {
	emit := func(name string, payload map[string]any) []byte {
		payload["type"] = name
		b, _ := json.Marshal(payload)
		return append([]byte("event: "+name+"\ndata: "), append(b, []byte("\n\n")...)...)
	}
	switch ev.Kind {
	case canon.EventRoleDelta:
		e.id, e.model = ev.ID, ev.Model
		return emit("response.created", map[string]any{"response": map[string]any{"id": ev.ID, "model": ev.Model}})
	case canon.EventContentDelta:
		return emit("response.output_text.delta", map[string]any{"item_id": ev.ID, "delta": ev.ContentDelta})
	case canon.EventToolCallDelta:
		return emit("response.function_call_arguments.delta", map[string]any{"item_id": ev.ToolCall.ID, "delta": ev.ToolCall.ArgumentsDelta})
	case canon.EventFinish:
		return nil
	case canon.EventUsageDelta:
		e.usage = ev.Usage
		return nil
	case canon.EventDone:
		usage := map[string]any{"input_tokens": 0, "output_tokens": 0, "total_tokens": 0}
		if e.usage != nil {
			usage = map[string]any{"input_tokens": e.usage.PromptTokens, "output_tokens": e.usage.CompletionTokens, "total_tokens": e.usage.TotalTokens}
		}
		id, model := e.id, e.model
		if ev.ID != "" {
			id = ev.ID
		}
		if ev.Model != "" {
			model = ev.Model
		}
		return emit("response.completed", map[string]any{
			"response": map[string]any{"id": id, "model": model, "status": "completed", "usage": usage},
		})
	case canon.EventError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return emit("error", map[string]any{"message": msg})
	}
	return nil
}
