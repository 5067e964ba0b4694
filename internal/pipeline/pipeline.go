// Package pipeline implements the §4.6 request pipeline and §4.6/§4.9
// response pipeline: the request-scoped state machine that takes one
// inbound client request through RECEIVED → RESOLVED → RATE_CHECKED →
// TRANSLATED → DISPATCHED → STREAMING|BUFFERED → COMPLETE, using
// internal/translate and internal/streaming (L1) to do the actual wire
// translation and internal/registry, internal/ratelimit, internal/auth,
// internal/dispatch, internal/metrics (L2 collaborators) to do everything
// else.
package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/llmgw/llmgateway/internal/auth"
	"github.com/llmgw/llmgateway/internal/bootstrap"
	"github.com/llmgw/llmgateway/internal/canon"
	"github.com/llmgw/llmgateway/internal/dispatch"
	"github.com/llmgw/llmgateway/internal/httpheaders"
	"github.com/llmgw/llmgateway/internal/metrics"
	"github.com/llmgw/llmgateway/internal/ratelimit"
	"github.com/llmgw/llmgateway/internal/registry"
	"github.com/llmgw/llmgateway/internal/streaming"
	"github.com/llmgw/llmgateway/internal/translate"
)

// RoutingHeader is set on every outbound request so a fronting proxy (the
// "host" of §5, collapsed here into direct HTTP dispatch) can pick the
// right upstream cluster by provider slug without re-parsing the body.
const RoutingHeader = "x-llmgateway-upstream"

// maxRequestBody bounds how much of a client's body the pipeline will
// buffer before giving up — §4.6 prefers a cheap scan but every translated
// request needs the full body decoded anyway, so this is the ceiling
// against a misbehaving or malicious client, not a performance shortcut.
const maxRequestBody = 16 << 20 // 16 MiB

// Pipeline holds everything shared across every request: read-only once
// built (§3.3), safe for concurrent use by many in-flight requests.
type Pipeline struct {
	Registry        *registry.Registry
	RateLimits      *ratelimit.Store
	SelectorHeaders *bootstrap.SelectorHeaders
	Dispatcher      dispatch.Dispatcher
	Metrics         metrics.Sink
	Defaults        translate.Defaults
	RequestTimeout  time.Duration

	// RequestTokenEstimate is the per-request token estimate §4.6's
	// RATE_CHECKED transition checks against before actual usage is known.
	// Default is 1.
	RequestTokenEstimate float64
}

// New builds a Pipeline from its collaborators. Zero-value RequestTokenEstimate
// is normalized to the default of 1.
func New(reg *registry.Registry, limits *ratelimit.Store, sel *bootstrap.SelectorHeaders, disp dispatch.Dispatcher, sink metrics.Sink, defaults translate.Defaults, timeout time.Duration, tokenEstimate float64) *Pipeline {
	if tokenEstimate <= 0 {
		tokenEstimate = 1
	}
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	return &Pipeline{
		Registry: reg, RateLimits: limits, SelectorHeaders: sel, Dispatcher: disp,
		Metrics: sink, Defaults: defaults, RequestTimeout: timeout, RequestTokenEstimate: tokenEstimate,
	}
}

// waypoints are the elapsed-time checkpoints §3.1's RequestContext names.
type waypoints struct {
	received         time.Time
	firstUpstream    time.Time
	firstClientByte  time.Time
	complete         time.Time
}

// Handle drives one request end-to-end for clientFormat (the wire format of
// the route it arrived on: OpenAI chat completions, Anthropic messages, or
// OpenAI responses). It never panics on a translation or upstream failure —
// every error path writes the §6.5 JSON error body and returns.
func (p *Pipeline) Handle(w http.ResponseWriter, r *http.Request, clientFormat canon.Family) {
	wp := waypoints{received: time.Now()}
	requestID := "req_" + uuid.NewString()

	body, err := readLimited(r.Body, maxRequestBody)
	if err != nil {
		writeError(w, canon.Wrap(canon.KindBadRequest, err, "reading request body"))
		return
	}

	// RECEIVED -> RESOLVED: decode fully (translation needs the whole
	// canonical shape regardless, so there is no cheaper partial parse
	// worth doing once a provider other than a byte-identical passthrough
	// is in play) and resolve a provider binding.
	canonReq, err := translate.DecodeRequest(clientFormat, body)
	if err != nil {
		writeError(w, err)
		return
	}

	hint := httpheaders.ProviderHintValue(r.Header)
	resolved, err := p.Registry.Resolve(canonReq.Model, hint)
	if err != nil {
		p.Metrics.RequestsTotal("", canonReq.Model, "rejected")
		writeError(w, err)
		return
	}
	binding := resolved.Binding
	canonReq.Model = resolved.Model

	if override, present := httpheaders.StreamingOverride(r.Header); present {
		canonReq.Stream = override
	}

	// RESOLVED -> RATE_CHECKED.
	selector := ""
	if headerName := p.SelectorHeaders.HeaderFor(canonReq.Model); headerName != "" {
		selector = selectorValue(r.Header, headerName)
		p.SelectorHeaders.EnsureSelectorBucket(p.RateLimits, canonReq.Model, selector)
	}
	buckets := p.RateLimits.Buckets(canonReq.Model, selector)
	for _, b := range buckets {
		ok, retryAfter := b.Check(p.RequestTokenEstimate)
		if !ok {
			p.Metrics.RateLimitedTotal(canonReq.Model, selector)
			p.Metrics.RequestsTotal(string(binding.Family), canonReq.Model, "rate_limited")
			rlErr := canon.NewError(canon.KindRateLimited, "rate limit exceeded for model "+canonReq.Model)
			rlErr.RetryAfterSeconds = retryAfter.Seconds()
			writeError(w, rlErr)
			return
		}
	}

	// RATE_CHECKED -> TRANSLATED.
	upstreamBody, err := translate.EncodeRequest(binding.Family, canonReq, p.Defaults)
	if err != nil {
		p.Metrics.RequestsTotal(string(binding.Family), canonReq.Model, "translation_error")
		writeError(w, err)
		return
	}

	path := upstreamPath(binding.Family, canonReq.Model, canonReq.Stream)
	query := ""
	if binding.Family == canon.FamilyGemini {
		query = gemStreamQuery(canonReq.Stream)
	}
	rawURL, err := upstreamURL(binding.BaseURL, path, query)
	if err != nil {
		writeError(w, canon.Wrap(canon.KindInternalError, err, "building upstream URL"))
		return
	}
	if binding.Auth.Scheme == registry.SchemeURLAPIKey {
		rawURL, err = auth.URLRewrite(rawURL, binding.Auth)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.RequestTimeout)
	defer cancel()

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(upstreamBody))
	if err != nil {
		writeError(w, canon.Wrap(canon.KindInternalError, err, "building upstream request"))
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set(RoutingHeader, binding.Slug)
	if binding.Family == canon.FamilyAnthropic {
		upstreamReq.Header.Set("anthropic-version", p.Defaults.AnthropicVersion)
	}
	switch binding.Auth.Scheme {
	case registry.SchemePassthrough:
		upstreamReq.Header.Set("Authorization", r.Header.Get("Authorization"))
	case registry.SchemeURLAPIKey:
		// already applied via auth.URLRewrite above, before the request
		// object existed to carry a header or signed body.
	default:
		if err := auth.Inject(ctx, upstreamReq, binding.Auth, upstreamBody); err != nil {
			writeError(w, err)
			return
		}
	}

	// TRANSLATED -> DISPATCHED.
	upstreamResp, err := p.Dispatcher.Do(ctx, upstreamReq)
	wp.firstUpstream = time.Now()
	if err != nil {
		status := "internal_error"
		var gwErr *canon.Error
		if ctx.Err() == context.DeadlineExceeded {
			gwErr = canon.NewError(canon.KindUpstreamTimeout, "upstream did not respond within the configured timeout")
			status = "upstream_timeout"
		} else {
			gwErr = canon.Wrap(canon.KindUpstreamError, err, "dispatching upstream request")
			status = "upstream_error"
		}
		p.Metrics.RequestsTotal(string(binding.Family), canonReq.Model, status)
		writeError(w, gwErr)
		return
	}
	defer upstreamResp.Body.Close()

	if upstreamResp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(upstreamResp.Body, maxRequestBody))
		p.Metrics.RequestsTotal(string(binding.Family), canonReq.Model, "upstream_error")
		writeError(w, canon.UpstreamStatus(upstreamResp.StatusCode, string(errBody)))
		return
	}

	// DISPATCHED -> STREAMING | BUFFERED -> COMPLETE.
	if canonReq.Stream {
		p.handleStreaming(w, r.Context(), binding.Family, clientFormat, canonReq.Model, requestID, upstreamResp.Body, buckets, selector, &wp)
	} else {
		p.handleBuffered(w, binding.Family, clientFormat, canonReq.Model, upstreamResp.Body, buckets, selector, &wp)
	}

	wp.complete = time.Now()
	p.Metrics.RequestsTotal(string(binding.Family), canonReq.Model, "ok")
	p.Metrics.ObserveRequestDuration(string(binding.Family), canonReq.Model, wp.complete.Sub(wp.received))
	if !wp.firstClientByte.IsZero() {
		p.Metrics.ObserveTTFT(string(binding.Family), canonReq.Model, wp.firstClientByte.Sub(wp.received))
	}
}

// handleBuffered implements the BUFFERED branch: read the full upstream
// body, run §4.3's response transform once, and emit a single JSON body.
func (p *Pipeline) handleBuffered(w http.ResponseWriter, sourceFamily, targetFamily canon.Family, model string, upstreamBody io.Reader, buckets []*ratelimit.Bucket, selector string, wp *waypoints) {
	raw, err := readLimited(upstreamBody, maxRequestBody)
	if err != nil {
		writeError(w, canon.Wrap(canon.KindUpstreamError, err, "reading upstream response body"))
		return
	}

	canonResp, err := translate.DecodeResponse(sourceFamily, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := translate.EncodeResponse(targetFamily, canonResp)
	if err != nil {
		writeError(w, err)
		return
	}

	wp.firstClientByte = time.Now()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)

	p.debitUsage(model, buckets, canonResp.Usage, textLength(canonResp))
	if canonResp.Usage != nil {
		elapsed := time.Since(wp.firstClientByte)
		if elapsed > 0 {
			p.Metrics.ObserveTokensPerSecond(string(sourceFamily), model, float64(canonResp.Usage.CompletionTokens)/elapsed.Seconds())
		}
	}
}

// handleStreaming implements the STREAMING branch: reassemble upstream
// frames through the L1 engine, re-emit them in the client's wire format as
// they arrive, and accumulate usage for the post-response rate-limit debit.
func (p *Pipeline) handleStreaming(w http.ResponseWriter, ctx context.Context, sourceFamily, targetFamily canon.Family, model, requestID string, upstreamBody io.Reader, buckets []*ratelimit.Bucket, selector string, wp *waypoints) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	engine := streaming.NewEngine(sourceFamily, requestID)
	encoder := streaming.NewEncoder(targetFamily)
	acc := streaming.NewAccumulator()

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, readErr := upstreamBody.Read(buf)
		if n > 0 {
			events := engine.Feed(buf[:n])
			for _, ev := range events {
				acc.Apply(ev)
				if wp.firstClientByte.IsZero() {
					wp.firstClientByte = time.Now()
				}
				_, _ = w.Write(encoder.EncodeEvent(ev))
			}
			if flusher != nil && len(events) > 0 {
				flusher.Flush()
			}
		}
		if readErr != nil {
			break
		}
		if engine.Done() {
			break
		}
	}

	result := acc.Result()
	p.debitUsage(model, buckets, result.Usage, textLength(result))
	if result.Usage != nil && !wp.firstClientByte.IsZero() {
		elapsed := time.Since(wp.firstClientByte)
		if elapsed > 0 {
			p.Metrics.ObserveTokensPerSecond(string(sourceFamily), model, float64(result.Usage.CompletionTokens)/elapsed.Seconds())
		}
	}
}

// debitUsage implements §4.8's post-response debit: actual usage when the
// provider reported it, otherwise the chars/4 fallback estimate §4.8 and
// §9's Open Question both name.
func (p *Pipeline) debitUsage(model string, buckets []*ratelimit.Bucket, usage *canon.Usage, emittedChars int) {
	var tokens float64
	if usage != nil && usage.CompletionTokens > 0 {
		tokens = float64(usage.CompletionTokens)
	} else {
		tokens = float64(emittedChars) / 4
	}
	for _, b := range buckets {
		b.Debit(tokens)
	}
}

func textLength(resp *canon.ChatResponse) int {
	total := 0
	for _, c := range resp.Choices {
		total += len(c.Message.Text)
	}
	return total
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func selectorValue(h http.Header, headerName string) string {
	if headerName == httpheaders.RateLimitSelector {
		return httpheaders.Selector(h)
	}
	return h.Get(headerName)
}
