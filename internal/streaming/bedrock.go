package streaming

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/llmgw/llmgateway/internal/canon"
)

// bedrockChunkPayload is the envelope InvokeModelWithResponseStream wraps
// around each event's JSON payload.
type bedrockChunkPayload struct {
	Bytes []byte `json:"bytes"`
}

// BedrockDecoder reassembles AWS Event Stream binary frames (length-prefixed,
// CRC-verified per the aws-sdk-go-v2 eventstream format) and delegates the
// decoded Anthropic-shaped JSON payload to an embedded AnthropicDecoder —
// Bedrock's Claude streaming payloads use the same message sequence
// Anthropic's own API does (§4.2), so the canonical event production is
// identical once the binary envelope is stripped.
type BedrockDecoder struct {
	buf   []byte
	inner *AnthropicDecoder
	dec   *eventstream.Decoder
}

func NewBedrockDecoder() *BedrockDecoder {
	return &BedrockDecoder{inner: NewAnthropicDecoder(), dec: eventstream.NewDecoder()}
}

// Feed appends raw bytes from the upstream body and returns every canonical
// event produced by whichever complete frames that bought. Unlike the SSE
// decoders, Bedrock frames are binary and have no Frame/event-name concept,
// so Feed bypasses the Decoder/Frame interface the SSE families share.
func (d *BedrockDecoder) Feed(chunk []byte) ([]canon.StreamEvent, error) {
	d.buf = append(d.buf, chunk...)
	var events []canon.StreamEvent
	for {
		if len(d.buf) < 4 {
			break
		}
		total := binary.BigEndian.Uint32(d.buf[:4])
		if total < 4 || uint64(len(d.buf)) < uint64(total) {
			break
		}
		frame := d.buf[:total]
		d.buf = d.buf[total:]

		msg, err := d.dec.Decode(bytes.NewReader(frame), nil)
		if err != nil {
			return events, canon.Wrap(canon.KindStreamError, err, "invalid Bedrock event stream frame")
		}

		eventType := ""
		for _, h := range msg.Headers {
			if h.Name == ":event-type" {
				if s, ok := h.Value.Get().(string); ok {
					eventType = s
				}
			}
			if h.Name == ":message-type" {
				if s, ok := h.Value.Get().(string); ok && s == "exception" {
					return events, canon.NewError(canon.KindUpstreamError, "bedrock stream exception: "+string(msg.Payload))
				}
			}
		}
		if eventType != "chunk" && eventType != "" {
			continue
		}

		payload := msg.Payload
		var wrapped bedrockChunkPayload
		if err := json.Unmarshal(payload, &wrapped); err == nil && len(wrapped.Bytes) > 0 {
			payload = wrapped.Bytes
		}

		evs, err := d.inner.DecodeFrame(Frame{Data: string(payload)})
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}
	return events, nil
}
