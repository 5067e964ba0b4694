package streaming

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/canon"
)

func encodeBedrockFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":event-type", Value: eventstream.StringValue("chunk")},
			{Name: ":message-type", Value: eventstream.StringValue("event")},
			{Name: ":content-type", Value: eventstream.StringValue("application/json")},
		},
		Payload: payload,
	}
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	require.NoError(t, enc.Encode(&buf, msg))
	return buf.Bytes()
}

// TestBedrockDecoder_ContentDelta is scenario S5: one valid, CRC-correct
// Bedrock Event Stream frame wrapping an Anthropic-shaped content_block_delta
// payload decodes to one canonical ContentDelta event.
func TestBedrockDecoder_ContentDelta(t *testing.T) {
	inner := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`
	wrapped := `{"bytes":"` + b64(inner) + `"}`
	frame := encodeBedrockFrame(t, []byte(wrapped))

	d := NewBedrockDecoder()
	events, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, canon.EventContentDelta, events[0].Kind)
	assert.Equal(t, "hi", events[0].ContentDelta)
}

// TestBedrockDecoder_SplitAcrossFeeds confirms a frame split mid-binary
// across two Feed calls is still reassembled before decoding.
func TestBedrockDecoder_SplitAcrossFeeds(t *testing.T) {
	inner := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}`
	wrapped := `{"bytes":"` + b64(inner) + `"}`
	frame := encodeBedrockFrame(t, []byte(wrapped))

	d := NewBedrockDecoder()
	mid := len(frame) / 2
	events, err := d.Feed(frame[:mid])
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = d.Feed(frame[mid:])
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].ContentDelta)
}

// TestBedrockDecoder_Exception covers the ":message-type"="exception" header
// case: the stream surfaces an upstream error instead of a parsed chunk.
func TestBedrockDecoder_Exception(t *testing.T) {
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":message-type", Value: eventstream.StringValue("exception")},
			{Name: ":exception-type", Value: eventstream.StringValue("throttlingException")},
		},
		Payload: []byte(`{"message":"rate exceeded"}`),
	}
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	require.NoError(t, enc.Encode(&buf, msg))

	d := NewBedrockDecoder()
	_, err := d.Feed(buf.Bytes())
	require.Error(t, err)
	gwErr, ok := err.(*canon.Error)
	require.True(t, ok)
	assert.Equal(t, canon.KindUpstreamError, gwErr.Kind)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
