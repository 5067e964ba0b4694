package streaming

import (
	"sort"

	"github.com/llmgw/llmgateway/internal/canon"
)

// Decoder turns one reassembled SSE frame into zero or more canonical stream
// events. Implementations carry whatever cross-frame state their wire
// format needs (Anthropic's block bookkeeping, Gemini's synthesized id).
type Decoder interface {
	DecodeFrame(f Frame) ([]canon.StreamEvent, error)
}

// Encoder renders one canonical stream event as wire-format bytes ready to
// write directly to the client connection.
type Encoder interface {
	EncodeEvent(ev canon.StreamEvent) []byte
}

// NewDecoder returns the SSE-framed decoder for family. Bedrock uses binary
// AWS Event Stream framing instead and is constructed via NewBedrockDecoder.
func NewDecoder(family canon.Family, id string) Decoder {
	switch family {
	case canon.FamilyOpenAI:
		return NewOpenAIDecoder()
	case canon.FamilyAnthropic:
		return NewAnthropicDecoder()
	case canon.FamilyGemini:
		return NewGeminiDecoder(id)
	case canon.FamilyResponses:
		return NewResponsesDecoder()
	default:
		return nil
	}
}

// NewEncoder returns the target-format encoder for family.
func NewEncoder(family canon.Family) Encoder {
	switch family {
	case canon.FamilyOpenAI:
		return NewOpenAIEncoder()
	case canon.FamilyAnthropic:
		return NewAnthropicEncoder()
	case canon.FamilyGemini:
		return NewGeminiEncoder()
	case canon.FamilyResponses:
		return NewResponsesEncoder()
	default:
		return nil
	}
}

// Engine drives the reassembly of one upstream response body into canonical
// stream events. It enforces §4.4/§8.1's terminal-sentinel-exactly-once
// property: once a Done or Error event has been produced, every later Feed
// call returns nothing — callers never need to guard against a duplicate
// terminal event or events arriving after one.
type Engine struct {
	source  canon.Family
	parser  *SSEParser
	decoder Decoder
	bedrock *BedrockDecoder
	done    bool
}

// NewEngine builds a reassembly engine for one upstream stream. id seeds the
// synthesized response id for wire formats (Gemini) that never return one.
func NewEngine(source canon.Family, id string) *Engine {
	e := &Engine{source: source}
	if source == canon.FamilyBedrock {
		e.bedrock = NewBedrockDecoder()
		return e
	}
	e.parser = &SSEParser{}
	e.decoder = NewDecoder(source, id)
	return e
}

// Feed consumes one chunk of raw upstream bytes — of any size, including
// bytes that split a token or a frame terminator — and returns every
// canonical event it produced. A malformed frame synthesizes a single
// EventError and ends the stream (§8.2 scenario S5/S6); no events are lost,
// the ones decoded before the malformed frame are still returned.
func (e *Engine) Feed(chunk []byte) []canon.StreamEvent {
	if e.done {
		return nil
	}

	var events []canon.StreamEvent
	var decodeErr error

	if e.bedrock != nil {
		evs, err := e.bedrock.Feed(chunk)
		events, decodeErr = evs, err
	} else {
		for _, f := range e.parser.Feed(chunk) {
			evs, err := e.decoder.DecodeFrame(f)
			events = append(events, evs...)
			if err != nil {
				decodeErr = err
				break
			}
		}
	}

	if decodeErr != nil {
		e.done = true
		// §7: a malformed frame is surfaced as one synthetic error event
		// followed by the terminal sentinel, so a client watching the
		// stream always observes a clean close instead of a silent hang.
		return append(events,
			canon.StreamEvent{Kind: canon.EventError, Err: decodeErr},
			canon.StreamEvent{Kind: canon.EventDone},
		)
	}
	for _, ev := range events {
		if ev.Kind == canon.EventDone {
			e.done = true
			break
		}
	}
	return events
}

// Done reports whether a terminal event (Done or Error) has been observed.
func (e *Engine) Done() bool { return e.done }

// ---------------------------------------------------------------------------
// Accumulator
// ---------------------------------------------------------------------------

// Accumulator reconstructs a non-streaming canon.ChatResponse from the
// canonical events a stream produced, including reassembling each tool
// call's arguments from its fragments — keyed by (choice index, block
// index) so concurrent tool calls in the same choice never interleave
// (§4.4). The pipeline's streaming branch uses this to compute final usage
// for the rate-limit debit and tokens-per-second metric.
type Accumulator struct {
	id, model string
	choices   map[int]*accumulatedChoice
	usage     canon.Usage
	sawUsage  bool
}

type accumulatedChoice struct {
	role      canon.Role
	text      string
	finish    string
	toolOrder []int
	toolCalls map[int]*canon.ToolCall
}

func NewAccumulator() *Accumulator {
	return &Accumulator{choices: make(map[int]*accumulatedChoice)}
}

// Apply folds one canonical stream event into the accumulator's state.
func (a *Accumulator) Apply(ev canon.StreamEvent) {
	if ev.ID != "" {
		a.id = ev.ID
	}
	if ev.Model != "" {
		a.model = ev.Model
	}
	c, ok := a.choices[ev.ChoiceIndex]
	if !ok {
		c = &accumulatedChoice{toolCalls: make(map[int]*canon.ToolCall)}
		a.choices[ev.ChoiceIndex] = c
	}
	switch ev.Kind {
	case canon.EventRoleDelta:
		c.role = ev.Role
	case canon.EventContentDelta:
		c.text += ev.ContentDelta
	case canon.EventToolCallDelta:
		td := ev.ToolCall
		tc, ok := c.toolCalls[td.BlockIndex]
		if !ok {
			tc = &canon.ToolCall{}
			c.toolCalls[td.BlockIndex] = tc
			c.toolOrder = append(c.toolOrder, td.BlockIndex)
		}
		if td.ID != "" {
			tc.ID = td.ID
		}
		if td.Name != "" {
			tc.Name = td.Name
		}
		tc.ArgumentsJSON += td.ArgumentsDelta
	case canon.EventFinish:
		c.finish = ev.FinishReason
	case canon.EventUsageDelta:
		a.sawUsage = true
		a.usage.Add(*ev.Usage)
	}
}

// Result builds the final canonical response from everything observed so
// far. Safe to call mid-stream (e.g. on premature disconnect) to get a
// best-effort partial response.
func (a *Accumulator) Result() *canon.ChatResponse {
	resp := &canon.ChatResponse{ID: a.id, Model: a.model}
	if a.sawUsage {
		u := a.usage
		resp.Usage = &u
	}
	indices := make([]int, 0, len(a.choices))
	for idx := range a.choices {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		c := a.choices[idx]
		msg := canon.Message{Role: c.role, Text: c.text}
		if msg.Role == "" {
			msg.Role = canon.RoleAssistant
		}
		for _, blockIdx := range c.toolOrder {
			msg.ToolCalls = append(msg.ToolCalls, *c.toolCalls[blockIdx])
		}
		resp.Choices = append(resp.Choices, canon.Choice{Index: idx, FinishReason: c.finish, Message: msg})
	}
	return resp
}
