package canon

import "encoding/json"

// ExtractPassthrough re-parses body as a raw top-level JSON object and
// returns every key not in known, for stashing on a ChatRequest/ChatResponse's
// Passthrough field (§4.1: "unknown fields in inputs are preserved when the
// transform target shape has a matching passthrough slot"). Returns nil if
// body isn't a JSON object or carries nothing beyond the known keys.
func ExtractPassthrough(body []byte, known map[string]bool) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	for k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// MergePassthrough re-parses an already-encoded wire body, adds back any
// passthrough keys it doesn't already set itself, and re-marshals. A key the
// target format's own fields already produced is never overwritten — the
// format's own semantics win over a carried-through unknown field.
func MergePassthrough(body []byte, passthrough map[string]json.RawMessage) []byte {
	if len(passthrough) == 0 {
		return body
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return body
	}
	for k, v := range passthrough {
		if _, exists := raw[k]; !exists {
			raw[k] = v
		}
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return body
	}
	return out
}
