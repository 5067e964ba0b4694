package canon

import (
	"fmt"
	"net/http"
)

// ErrorKind is the taxonomy from §7. Every error the gateway returns to a
// client, and every error the streaming engine synthesizes mid-stream,
// carries one of these.
type ErrorKind string

const (
	KindBadRequest       ErrorKind = "BadRequest"
	KindUnknownModel     ErrorKind = "UnknownModel"
	KindUnauthorized     ErrorKind = "Unauthorized"
	KindRateLimited      ErrorKind = "RateLimited"
	KindUpstreamTimeout  ErrorKind = "UpstreamTimeout"
	KindUpstreamError    ErrorKind = "UpstreamError"
	KindTranslationError ErrorKind = "TranslationError"
	KindStreamError      ErrorKind = "StreamError"
	KindInternalError    ErrorKind = "InternalError"
)

// defaultStatus maps a Kind to the HTTP status §7 assigns it. UpstreamError
// is special-cased by callers, who know the actual upstream status to
// preserve.
var defaultStatus = map[ErrorKind]int{
	KindBadRequest:       http.StatusBadRequest,
	KindUnknownModel:     http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindRateLimited:      http.StatusTooManyRequests,
	KindUpstreamTimeout:  http.StatusGatewayTimeout,
	KindUpstreamError:    http.StatusBadGateway,
	KindTranslationError: http.StatusUnprocessableEntity,
	KindStreamError:      http.StatusBadGateway,
	KindInternalError:    http.StatusInternalServerError,
}

// Error is the gateway's typed error. It implements error and carries enough
// to render the §6.5 JSON error body directly.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string

	// Path names the offending field for TranslationError (§7), e.g.
	// "tools[0].input_schema.additionalProperties".
	Path string

	// RetryAfterSeconds is set on RateLimited errors (§4.8).
	RetryAfterSeconds float64

	Cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error with the Kind's default HTTP status.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, HTTPStatus: defaultStatus[kind], Message: message}
}

// Wrap builds an Error around a causing error.
func Wrap(kind ErrorKind, cause error, message string) *Error {
	return &Error{Kind: kind, HTTPStatus: defaultStatus[kind], Message: message, Cause: cause}
}

// WithPath returns a copy of the error annotated with the offending field
// path, used by TranslationError (§7).
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// UpstreamStatus builds an UpstreamError preserving the upstream's own HTTP
// status, per §7's "upstream-preserved" rule.
func UpstreamStatus(status int, message string) *Error {
	return &Error{Kind: KindUpstreamError, HTTPStatus: status, Message: message}
}
