package dispatch

import (
	"net/http"

	"gopkg.in/dnaeon/go-vcr.v4/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/recorder"
)

// NewCassetteDispatcher builds a Dispatcher that replays (or, the first
// time, records) upstream HTTP exchanges from a cassette file, so
// translate/streaming round-trip tests can exercise the real dispatch path
// without reaching the network.
func NewCassetteDispatcher(cassettePath string, mode recorder.Mode) (*HTTPDispatcher, func() error, error) {
	rec, err := recorder.New(cassettePath, recorder.WithMode(mode))
	if err != nil {
		return nil, nil, err
	}
	rec.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})
	client := &http.Client{Transport: rec}
	return NewHTTPDispatcher(client), rec.Stop, nil
}
