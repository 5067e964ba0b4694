package pipeline

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/llmgw/llmgateway/internal/canon"
)

// errorBody is the §6.5 JSON error envelope every REJECTED/FAILED
// transition renders to the client.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// writeError renders err as the §6.5 JSON body, setting Retry-After when
// the error carries one (RateLimited) and the status code from the typed
// error if it is one, else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := canon.KindInternalError
	msg := err.Error()

	if asErr, ok := err.(*canon.Error); ok {
		status = asErr.HTTPStatus
		kind = asErr.Kind
		msg = asErr.Message
		if asErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", formatRetryAfter(asErr.RetryAfterSeconds))
		}
	}

	var body errorBody
	body.Error.Type = string(kind)
	body.Error.Message = msg
	body.Error.Code = status

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func formatRetryAfter(seconds float64) string {
	whole := int(seconds)
	if float64(whole) < seconds {
		whole++
	}
	if whole < 1 {
		whole = 1
	}
	return strconv.Itoa(whole)
}
