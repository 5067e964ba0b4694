package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/canon"
)

func openaiChunks() []string {
	return []string{
		`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}` + "\n\n",
		`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"hel"},"finish_reason":null}]}` + "\n\n",
		`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}` + "\n\n",
		`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n",
		"data: [DONE]\n\n",
	}
}

func feedWholeFrames(t *testing.T, engine *Engine, frames []string) []canon.StreamEvent {
	t.Helper()
	var all []canon.StreamEvent
	for _, f := range frames {
		all = append(all, engine.Feed([]byte(f))...)
	}
	return all
}

func feedByteAtATime(t *testing.T, engine *Engine, frames []string) []canon.StreamEvent {
	t.Helper()
	joined := ""
	for _, f := range frames {
		joined += f
	}
	var all []canon.StreamEvent
	for i := 0; i < len(joined); i++ {
		all = append(all, engine.Feed([]byte{joined[i]})...)
	}
	return all
}

// TestEngine_PartitionInvariance checks that any partition of the same byte
// stream into Feed() calls yields the same event sequence, whether fed one
// frame at a time or one byte at a time.
func TestEngine_PartitionInvariance(t *testing.T) {
	frames := openaiChunks()

	whole := feedWholeFrames(t, NewEngine(canon.FamilyOpenAI, "chatcmpl_1"), frames)
	byByte := feedByteAtATime(t, NewEngine(canon.FamilyOpenAI, "chatcmpl_1"), frames)

	require.Equal(t, len(whole), len(byByte))
	for i := range whole {
		assert.Equal(t, whole[i].Kind, byByte[i].Kind)
		assert.Equal(t, whole[i].ContentDelta, byByte[i].ContentDelta)
		assert.Equal(t, whole[i].FinishReason, byByte[i].FinishReason)
	}
}

// TestEngine_TerminalExactlyOnce checks that once Done is observed, every
// later Feed call returns nothing, even if more bytes arrive.
func TestEngine_TerminalExactlyOnce(t *testing.T) {
	engine := NewEngine(canon.FamilyOpenAI, "chatcmpl_1")
	frames := openaiChunks()
	_ = feedWholeFrames(t, engine, frames)
	require.True(t, engine.Done())

	extra := engine.Feed([]byte(`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"late"}}]}` + "\n\n"))
	assert.Empty(t, extra)
}

// TestEngine_MalformedFrameSynthesizesError checks that a malformed SSE data
// payload produces exactly one EventError and ends the stream, without
// losing events already decoded.
func TestEngine_MalformedFrameSynthesizesError(t *testing.T) {
	engine := NewEngine(canon.FamilyOpenAI, "chatcmpl_1")

	events := engine.Feed([]byte(`data: {"id":"chatcmpl_1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant"}}]}` + "\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, canon.EventRoleDelta, events[0].Kind)

	events = engine.Feed([]byte("data: {not json\n\n"))
	require.Len(t, events, 2)
	assert.Equal(t, canon.EventError, events[0].Kind)
	require.Error(t, events[0].Err)
	assert.Equal(t, canon.EventDone, events[1].Kind)

	assert.True(t, engine.Done())
	assert.Empty(t, engine.Feed([]byte("data: {\"id\":\"x\"}\n\n")))
}

// TestAccumulator_ToolCallReassembly covers tool-call fragment
// concatenation, keyed by block index so concurrent tool calls don't
// interleave.
func TestAccumulator_ToolCallReassembly(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(canon.StreamEvent{Kind: canon.EventRoleDelta, ID: "chatcmpl_1", Model: "gpt-4o-mini", Role: canon.RoleAssistant})
	acc.Apply(canon.StreamEvent{Kind: canon.EventToolCallDelta, ToolCall: &canon.ToolCallDelta{BlockIndex: 0, ID: "call_1", Name: "get_weather"}})
	acc.Apply(canon.StreamEvent{Kind: canon.EventToolCallDelta, ToolCall: &canon.ToolCallDelta{BlockIndex: 0, ArgumentsDelta: `{"city":`}})
	acc.Apply(canon.StreamEvent{Kind: canon.EventToolCallDelta, ToolCall: &canon.ToolCallDelta{BlockIndex: 0, ArgumentsDelta: `"Paris"}`}})
	acc.Apply(canon.StreamEvent{Kind: canon.EventFinish, FinishReason: "tool_calls"})

	resp := acc.Result()
	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"Paris"}`, msg.ToolCalls[0].ArgumentsJSON)
	assert.Equal(t, "tool_calls", resp.Choices[0].FinishReason)
}

// TestSSEParser_SplitAcrossChunks exercises the low-level frame cutter
// directly: a frame whose terminator arrives split across two Feed calls is
// still recognized as one frame.
func TestSSEParser_SplitAcrossChunks(t *testing.T) {
	p := &SSEParser{}
	frames := p.Feed([]byte("data: hello\n"))
	assert.Empty(t, frames)
	frames = p.Feed([]byte("\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "hello", frames[0].Data)
}
