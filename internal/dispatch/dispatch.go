// Package dispatch abstracts the thing that actually performs upstream I/O.
// Translation and streaming code calls through this interface instead of
// touching net/http directly, so a callback-style host embedding this
// gateway as a filter (on_request_headers/on_request_body/
// on_response_headers/on_response_body/on_dispatch_response) collapses, for
// a standalone gateway process, into one synchronous round trip plus a
// streaming body reader.
package dispatch

import (
	"context"
	"net/http"
)

// Dispatcher sends an upstream request and returns the response headers
// immediately, with Body still open for the caller to read — streaming and
// buffered response handling both start from the same call, branching into
// a STREAMING or BUFFERED path by how they consume Body.
type Dispatcher interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPDispatcher is the production Dispatcher: a thin wrapper over
// *http.Client.
type HTTPDispatcher struct {
	Client *http.Client
}

// NewHTTPDispatcher builds a dispatcher around client. Passing the client in
// (rather than constructing one internally) lets callers configure timeouts
// and transport pooling centrally.
func NewHTTPDispatcher(client *http.Client) *HTTPDispatcher {
	return &HTTPDispatcher{Client: client}
}

func (d *HTTPDispatcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.Client.Do(req.WithContext(ctx))
}
