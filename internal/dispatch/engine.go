package dispatch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"shrike/internal/domain"
	"shrike/internal/metrics"
	"shrike/internal/pool"
	"shrike/internal/support"
)

// Result is the caller-visible terminal value of one fetch call. It is
// immutable after construction; the endpoint layer maps it to a response.
type Result struct {
	Success    bool
	StatusCode int
	Body       []byte
	ErrorKind  ErrorKind
	Err        error
}

// Options bounds the retry loop of a single fetch call.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

// Engine executes outbound fetches through rotating proxies. Every attempt
// outcome is reported back into the pool; after the proxied attempts are
// exhausted (or the pool is empty) exactly one direct attempt is made.
type Engine struct {
	pool     *pool.Pool
	selector *pool.Selector
	metrics  *metrics.Metrics
	opts     Options
}

func NewEngine(p *pool.Pool, selector *pool.Selector, m *metrics.Metrics, opts Options) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	return &Engine{pool: p, selector: selector, metrics: m, opts: opts}
}

// Fetch retrieves targetURL, rotating through the proxy pool and falling
// back to a direct connection. It always returns a structured result; the
// worst case is a terminal all-attempts-exhausted failure carrying the
// last underlying error. Cancelling ctx aborts the in-flight attempt and
// short-circuits remaining retries.
func (e *Engine) Fetch(ctx context.Context, targetURL string) Result {
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		endpoint, ok := e.selector.Next()
		if !ok {
			// Degraded, not fatal: the direct fallback below still runs.
			log.Warn("no proxies available, skipping to direct connection")
			lastErr = ErrNoProxiesAvailable
			break
		}

		status, body, err := e.attempt(ctx, targetURL, &endpoint)
		e.pool.RecordDispatchOutcome(endpoint, err == nil)
		e.metrics.CountAttempt("proxy", err == nil)

		if err == nil {
			log.Info("request successful through proxy", "proxy", endpoint.URL())
			e.metrics.CountRequest("success")
			return Result{Success: true, StatusCode: status, Body: body}
		}

		lastErr = err
		log.Warn("fetch attempt failed",
			"attempt", attempt,
			"proxy", endpoint.URL(),
			"kind", classifyAttemptError(err),
			"error", err)

		if ctx.Err() != nil {
			return e.terminal(ctx.Err())
		}
		if attempt < e.opts.MaxAttempts {
			if !e.backoff(ctx) {
				return e.terminal(ctx.Err())
			}
		}
	}

	log.Info("attempting direct connection", "last_error", lastErr)
	status, body, err := e.attempt(ctx, targetURL, nil)
	e.pool.RecordDirectOutcome(err == nil)
	e.metrics.CountAttempt("direct", err == nil)

	if err == nil {
		e.metrics.CountRequest("success")
		return Result{Success: true, StatusCode: status, Body: body}
	}

	log.Error("direct connection failed", "kind", classifyAttemptError(err), "error", err)
	result := e.terminal(err)
	result.StatusCode = status
	return result
}

func (e *Engine) terminal(lastErr error) Result {
	e.metrics.CountRequest(string(KindAllAttemptsExhausted))
	return Result{
		ErrorKind: KindAllAttemptsExhausted,
		Err:       fmt.Errorf("%w: %w", ErrAllAttemptsExhausted, lastErr),
	}
}

// attempt performs a single outbound request, proxied when endpoint is
// non-nil. A nil error means HTTP 200 with the body read in full; every
// other outcome is an error for the caller to classify.
func (e *Engine) attempt(ctx context.Context, targetURL string, endpoint *domain.Endpoint) (int, []byte, error) {
	var transport *http.Transport
	if endpoint != nil {
		var err error
		transport, err = support.ProxyTransport(*endpoint, e.opts.AttemptTimeout)
		if err != nil {
			return 0, nil, err
		}
	} else {
		transport = support.DirectTransport(e.opts.AttemptTimeout)
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   e.opts.AttemptTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, nil, err
	}
	support.ApplyRandomHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, &statusError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// backoff sleeps a randomized interval between attempts so concurrent
// dispatchers do not hammer the same failing proxy in lockstep. Returns
// false when the context was cancelled first.
func (e *Engine) backoff(ctx context.Context) bool {
	min, max := e.opts.BackoffMin, e.opts.BackoffMax
	if min < 0 {
		min = 0
	}
	delay := min
	if max > min {
		delay = min + rand.N(max-min)
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
