package pool

import (
	"testing"

	"shrike/internal/domain"
)

func TestSelectorRoundRobinInsertionOrder(t *testing.T) {
	endpoints := []domain.Endpoint{
		endpoint("1.1.1.1", 80),
		endpoint("2.2.2.2", 80),
		endpoint("3.3.3.3", 80),
	}
	p := seeded(t, endpoints...)
	for _, ep := range endpoints {
		p.RecordProbeOutcome(ep, true)
	}

	selector := NewSelector(p)

	// Two full rotations: every member exactly once per N consecutive
	// calls, in insertion order.
	for round := 0; round < 2; round++ {
		for i, want := range endpoints {
			got, ok := selector.Next()
			if !ok {
				t.Fatalf("round %d call %d: selector returned no proxy", round, i)
			}
			if got != want {
				t.Fatalf("round %d call %d: got %v, want %v", round, i, got, want)
			}
		}
	}
}

func TestSelectorEmptyPool(t *testing.T) {
	selector := NewSelector(New(5, 0.2))

	if _, ok := selector.Next(); ok {
		t.Fatal("selector returned a proxy from an empty pool")
	}
}

func TestSelectorSkipsFailedProxies(t *testing.T) {
	healthy := endpoint("1.1.1.1", 80)
	broken := endpoint("2.2.2.2", 80)
	p := seeded(t, healthy, broken)

	p.RecordProbeOutcome(healthy, true)
	p.RecordProbeOutcome(broken, false)

	selector := NewSelector(p)
	for i := 0; i < 4; i++ {
		got, ok := selector.Next()
		if !ok {
			t.Fatalf("call %d: no proxy returned", i)
		}
		if got != healthy {
			t.Fatalf("call %d: selected failed proxy %v", i, got)
		}
	}
}

func TestSelectorUntestedIsSelectable(t *testing.T) {
	fresh := endpoint("1.1.1.1", 80)
	p := seeded(t, fresh)

	selector := NewSelector(p)
	got, ok := selector.Next()
	if !ok || got != fresh {
		t.Fatalf("untested candidate not selectable: %v ok=%v", got, ok)
	}
}

func TestSelectorToleratesConcurrentShrink(t *testing.T) {
	endpoints := []domain.Endpoint{
		endpoint("1.1.1.1", 80),
		endpoint("2.2.2.2", 80),
		endpoint("3.3.3.3", 80),
	}
	p := seeded(t, endpoints...)
	selector := NewSelector(p)

	// Advance the cursor past the soon-to-be-smaller set size.
	for i := 0; i < 5; i++ {
		selector.Next()
	}

	p.RecordProbeOutcome(endpoints[1], false)
	p.RecordProbeOutcome(endpoints[2], false)

	got, ok := selector.Next()
	if !ok {
		t.Fatal("selector returned no proxy after shrink")
	}
	if got != endpoints[0] {
		t.Fatalf("selected %v after shrink, want %v", got, endpoints[0])
	}
}
