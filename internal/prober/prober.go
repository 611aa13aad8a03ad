package prober

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"shrike/internal/domain"
	"shrike/internal/metrics"
	"shrike/internal/pool"
	"shrike/internal/support"
)

const fastStartConcurrency = 10

// Options tunes both probe passes. The constants mirror the echo-target
// probing strategy: a short-timeout burst over a prefix of the candidate
// list at startup, then a patient background sweep for the process
// lifetime.
type Options struct {
	ProbeURL         string
	FastStartPrefix  int
	FastStartTimeout time.Duration
	SweepTimeout     time.Duration
	SweepDelay       time.Duration
	SweepIdle        time.Duration
}

// Prober performs out-of-band connectivity tests against candidates,
// independent of live dispatch traffic. Every result feeds the pool state
// machine through RecordProbeOutcome; probing has no other side effect on
// dispatch state.
type Prober struct {
	pool    *pool.Pool
	metrics *metrics.Metrics
	opts    Options

	// Collapses concurrent probes of the same endpoint (sweep racing an
	// overlapping sweep cycle) into one request.
	group singleflight.Group
}

func New(p *pool.Pool, m *metrics.Metrics, opts Options) *Prober {
	return &Prober{pool: p, metrics: m, opts: opts}
}

// Probe tests a single endpoint: one lightweight GET against the echo
// target, through the candidate proxy, with randomized browser headers.
// Anything but HTTP 200 within the timeout is a failure.
func (p *Prober) Probe(ctx context.Context, endpoint domain.Endpoint, timeout time.Duration) bool {
	result, _, _ := p.group.Do(endpoint.URL(), func() (any, error) {
		success := p.probeOnce(ctx, endpoint, timeout)
		p.metrics.CountProbe(success)
		p.pool.RecordProbeOutcome(endpoint, success)
		return success, nil
	})
	success, _ := result.(bool)
	return success
}

func (p *Prober) probeOnce(ctx context.Context, endpoint domain.Endpoint, timeout time.Duration) bool {
	transport, err := support.ProxyTransport(endpoint, timeout)
	if err != nil {
		log.Debug("probe: failed to create transport", "proxy", endpoint.URL(), "error", err)
		return false
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.ProbeURL, nil)
	if err != nil {
		log.Debug("probe: failed to create request", "error", err)
		return false
	}
	support.ApplyRandomHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		log.Debug("probe failed", "proxy", endpoint.URL(), "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// FastStart probes the first FastStartPrefix candidates with the short
// timeout and blocks until they are classified, so the pool has some
// confirmed working proxies before traffic is served. Remaining candidates
// stay untested but selectable until the sweep reaches them.
func (p *Prober) FastStart(ctx context.Context) {
	candidates := p.pool.Candidates()
	prefix := p.opts.FastStartPrefix
	if prefix <= 0 || prefix > len(candidates) {
		prefix = len(candidates)
	}
	if prefix == 0 {
		return
	}

	log.Info("probing initial proxy candidates", "count", prefix)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fastStartConcurrency)
	for _, endpoint := range candidates[:prefix] {
		g.Go(func() error {
			p.Probe(gctx, endpoint, p.opts.FastStartTimeout)
			return nil
		})
	}
	_ = g.Wait()

	stats := p.pool.SnapshotStats()
	log.Info("initial probe pass finished",
		"working", stats.WorkingCount,
		"failed", stats.FailedCount,
		"untested", stats.UntestedCount,
		"duration", time.Since(start))
}

// Run is the background sweep: it continuously re-probes every candidate
// not currently working (untested ones and failed ones, which is the only
// recovery path) until the context is cancelled. Already-applied
// classifications survive cancellation; the loop just stops.
func (p *Prober) Run(ctx context.Context) {
	for {
		targets := p.pool.NotWorking()

		for _, endpoint := range targets {
			if ctx.Err() != nil {
				return
			}
			p.Probe(ctx, endpoint, p.opts.SweepTimeout)

			if !sleepCtx(ctx, p.opts.SweepDelay) {
				return
			}
		}

		if !sleepCtx(ctx, p.opts.SweepIdle) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
