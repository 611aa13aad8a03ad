package pool

import (
	"sync"
	"testing"

	"shrike/internal/domain"
)

func endpoint(host string, port uint16) domain.Endpoint {
	return domain.Endpoint{Host: host, Port: port, Scheme: "http"}
}

func seeded(t *testing.T, endpoints ...domain.Endpoint) *Pool {
	t.Helper()
	p := New(5, 0.2)
	if added := p.AddCandidates(endpoints); added != len(endpoints) {
		t.Fatalf("AddCandidates added %d, want %d", added, len(endpoints))
	}
	return p
}

func TestAddCandidatesIsIdempotent(t *testing.T) {
	endpoints := []domain.Endpoint{endpoint("1.1.1.1", 80), endpoint("2.2.2.2", 8080)}

	p := New(5, 0.2)
	p.AddCandidates(endpoints)
	p.RecordProbeOutcome(endpoints[0], true)

	if added := p.AddCandidates(endpoints); added != 0 {
		t.Fatalf("second AddCandidates added %d records, want 0", added)
	}

	stats := p.SnapshotStats()
	if stats.TotalCandidates != 2 {
		t.Fatalf("pool size = %d, want 2", stats.TotalCandidates)
	}
	if got, _ := p.Classification(endpoints[0]); got != Working {
		t.Fatalf("re-adding reset classification to %v", got)
	}
}

func TestProbeOutcomeDrivesClassification(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	if got, _ := p.Classification(ep); got != Untested {
		t.Fatalf("fresh record classified %v, want untested", got)
	}

	p.RecordProbeOutcome(ep, true)
	if got, _ := p.Classification(ep); got != Working {
		t.Fatalf("after probe success: %v, want working", got)
	}

	p.RecordProbeOutcome(ep, false)
	if got, _ := p.Classification(ep); got != Failed {
		t.Fatalf("after probe failure: %v, want failed", got)
	}
}

func TestLiveTrafficNeverResurrectsFailedProxy(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	p.RecordProbeOutcome(ep, false)

	// A lucky live retry must not recover the proxy.
	p.RecordDispatchOutcome(ep, true)
	p.RecordDispatchOutcome(ep, true)
	if got, _ := p.Classification(ep); got != Failed {
		t.Fatalf("live success resurrected a failed proxy: %v", got)
	}

	// Only a successful probe recovers it.
	p.RecordProbeOutcome(ep, true)
	if got, _ := p.Classification(ep); got != Working {
		t.Fatalf("probe success did not recover: %v", got)
	}
}

func TestPerformanceEvictionUsesStrictFloor(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	// One success, then failures up to the minimum sample size: ratio is
	// exactly 1/5 = 0.2, which is at the floor but not below it.
	p.RecordProbeOutcome(ep, true)
	for i := 0; i < 4; i++ {
		p.RecordDispatchOutcome(ep, false)
	}
	if got, _ := p.Classification(ep); got != Working {
		t.Fatalf("proxy at the floor (1/5) was evicted: %v", got)
	}

	// The sixth failed attempt pushes the ratio below the floor.
	p.RecordDispatchOutcome(ep, false)
	if got, _ := p.Classification(ep); got != Failed {
		t.Fatalf("proxy below the floor (1/6) was not evicted: %v", got)
	}
}

func TestNoEvictionBeforeMinimumSample(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	p.RecordProbeOutcome(ep, true)
	p.RecordDispatchOutcome(ep, false)
	p.RecordDispatchOutcome(ep, false)

	if got, _ := p.Classification(ep); got != Working {
		t.Fatalf("proxy evicted before minimum sample size: %v", got)
	}
}

func TestUntestedStaysUntestedOnLiveSuccess(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	p.RecordDispatchOutcome(ep, true)

	if got, _ := p.Classification(ep); got != Untested {
		t.Fatalf("live success promoted untested proxy to %v", got)
	}
}

func TestSnapshotStatsCountsAttempts(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	p.RecordDispatchOutcome(ep, true)
	p.RecordDispatchOutcome(ep, false)
	p.RecordDirectOutcome(true)

	stats := p.SnapshotStats()
	if stats.TotalAttempts != 3 {
		t.Fatalf("TotalAttempts = %d, want 3", stats.TotalAttempts)
	}
	if stats.SuccessfulAttempts != 2 {
		t.Fatalf("SuccessfulAttempts = %d, want 2", stats.SuccessfulAttempts)
	}
	if stats.FailedAttempts != 1 {
		t.Fatalf("FailedAttempts = %d, want 1", stats.FailedAttempts)
	}
}

func TestSnapshotStatsClassificationBuckets(t *testing.T) {
	first := endpoint("1.1.1.1", 80)
	second := endpoint("2.2.2.2", 80)
	third := endpoint("3.3.3.3", 80)
	p := seeded(t, first, second, third)

	p.RecordProbeOutcome(first, true)
	p.RecordProbeOutcome(second, false)

	stats := p.SnapshotStats()
	if stats.WorkingCount != 1 || stats.FailedCount != 1 || stats.UntestedCount != 1 {
		t.Fatalf("buckets = working %d / failed %d / untested %d, want 1/1/1",
			stats.WorkingCount, stats.FailedCount, stats.UntestedCount)
	}
}

func TestConcurrentOutcomeReports(t *testing.T) {
	ep := endpoint("1.1.1.1", 80)
	p := seeded(t, ep)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			p.RecordDispatchOutcome(ep, success)
			p.RecordProbeOutcome(ep, success)
		}(i%2 == 0)
	}
	wg.Wait()

	stats := p.SnapshotStats()
	if stats.TotalAttempts != 50 {
		t.Fatalf("TotalAttempts = %d, want 50", stats.TotalAttempts)
	}
	// Classification is whichever report landed last; it must be a valid
	// bucket and the counters must have stayed additive.
	if got, ok := p.Classification(ep); !ok || (got != Working && got != Failed) {
		t.Fatalf("classification after concurrent probes: %v ok=%v", got, ok)
	}
}
