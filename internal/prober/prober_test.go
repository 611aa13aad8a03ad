package prober

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"shrike/internal/domain"
	"shrike/internal/pool"
)

// fakeProxy starts an HTTP server standing in for a forward proxy. Proxied
// GET requests arrive in absolute-URI form and are answered with the
// configured status, which is all the prober looks at.
func fakeProxy(t *testing.T, status *atomic.Int64) (*httptest.Server, domain.Endpoint) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(server.Close)

	return server, endpointFromAddr(t, server.Listener.Addr().String())
}

func endpointFromAddr(t *testing.T, addr string) domain.Endpoint {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return domain.Endpoint{Host: host, Port: uint16(port), Scheme: "http"}
}

func deadProxy(t *testing.T) domain.Endpoint {
	t.Helper()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := endpointFromAddr(t, server.Listener.Addr().String())
	server.Close()
	return endpoint
}

func statusValue(code int) *atomic.Int64 {
	v := &atomic.Int64{}
	v.Store(int64(code))
	return v
}

func newProber(p *pool.Pool, opts Options) *Prober {
	if opts.ProbeURL == "" {
		opts.ProbeURL = "http://echo.test/ip"
	}
	if opts.FastStartTimeout == 0 {
		opts.FastStartTimeout = 2 * time.Second
	}
	if opts.SweepTimeout == 0 {
		opts.SweepTimeout = 2 * time.Second
	}
	return New(p, nil, opts)
}

func TestProbeClassifiesByStatus(t *testing.T) {
	_, healthy := fakeProxy(t, statusValue(http.StatusOK))
	_, broken := fakeProxy(t, statusValue(http.StatusInternalServerError))
	unreachable := deadProxy(t)

	p := pool.New(5, 0.2)
	p.AddCandidates([]domain.Endpoint{healthy, broken, unreachable})
	prober := newProber(p, Options{})

	if !prober.Probe(context.Background(), healthy, 2*time.Second) {
		t.Fatal("probe against healthy proxy failed")
	}
	if prober.Probe(context.Background(), broken, 2*time.Second) {
		t.Fatal("probe succeeded despite non-200 response")
	}
	if prober.Probe(context.Background(), unreachable, 2*time.Second) {
		t.Fatal("probe succeeded against unreachable proxy")
	}

	assertClassification(t, p, healthy, pool.Working)
	assertClassification(t, p, broken, pool.Failed)
	assertClassification(t, p, unreachable, pool.Failed)
}

func TestFastStartClassifiesPrefix(t *testing.T) {
	_, healthy := fakeProxy(t, statusValue(http.StatusOK))
	_, broken := fakeProxy(t, statusValue(http.StatusBadGateway))
	unreachable := deadProxy(t)

	p := pool.New(5, 0.2)
	p.AddCandidates([]domain.Endpoint{healthy, broken, unreachable})

	prober := newProber(p, Options{FastStartPrefix: 3})
	prober.FastStart(context.Background())

	stats := p.SnapshotStats()
	if stats.WorkingCount != 1 || stats.FailedCount != 2 {
		t.Fatalf("after fast start: working %d / failed %d, want 1/2",
			stats.WorkingCount, stats.FailedCount)
	}

	// Every subsequent selection must land on the single working proxy.
	selector := pool.NewSelector(p)
	for i := 0; i < 5; i++ {
		got, ok := selector.Next()
		if !ok || got != healthy {
			t.Fatalf("selection %d: got %v ok=%v, want %v", i, got, ok, healthy)
		}
	}
}

func TestFastStartLeavesRemainderUntested(t *testing.T) {
	_, healthy := fakeProxy(t, statusValue(http.StatusOK))
	_, second := fakeProxy(t, statusValue(http.StatusOK))

	p := pool.New(5, 0.2)
	p.AddCandidates([]domain.Endpoint{healthy, second})

	prober := newProber(p, Options{FastStartPrefix: 1})
	prober.FastStart(context.Background())

	assertClassification(t, p, healthy, pool.Working)
	assertClassification(t, p, second, pool.Untested)
}

func TestSweepRecoversFailedProxy(t *testing.T) {
	status := statusValue(http.StatusServiceUnavailable)
	_, flaky := fakeProxy(t, status)

	p := pool.New(5, 0.2)
	p.AddCandidates([]domain.Endpoint{flaky})

	prober := newProber(p, Options{
		SweepDelay: time.Millisecond,
		SweepIdle:  5 * time.Millisecond,
	})

	prober.Probe(context.Background(), flaky, time.Second)
	assertClassification(t, p, flaky, pool.Failed)

	// The proxy comes back; the background sweep must move it to working.
	status.Store(http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		prober.Run(ctx)
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for {
		if got, _ := p.Classification(flaky); got == pool.Working {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweep did not recover the proxy in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not stop after cancellation")
	}

	assertClassification(t, p, flaky, pool.Working)
}

func assertClassification(t *testing.T, p *pool.Pool, endpoint domain.Endpoint, want pool.Classification) {
	t.Helper()

	got, ok := p.Classification(endpoint)
	if !ok {
		t.Fatalf("endpoint %v not in pool", endpoint)
	}
	if got != want {
		t.Fatalf("classification of %v = %v, want %v", endpoint, got, want)
	}
}
