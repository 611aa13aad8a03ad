package pool

import (
	"sync/atomic"

	"shrike/internal/domain"
)

// Selector hands out proxies for dispatch attempts under round-robin
// rotation. The cursor is process-wide, not per-request, so load spreads
// evenly across the pool instead of every call restarting from the same
// proxy. The modulus is computed against the eligible set observed at call
// time, so concurrent shrink or growth of the pool cannot cause an
// out-of-range access.
type Selector struct {
	pool   *Pool
	cursor atomic.Uint64
}

func NewSelector(p *Pool) *Selector {
	return &Selector{pool: p}
}

// Next returns the next eligible proxy, or ok=false when none remain and
// the caller should fall back to a direct connection.
func (s *Selector) Next() (domain.Endpoint, bool) {
	eligible := s.pool.Eligible()
	if len(eligible) == 0 {
		return domain.Endpoint{}, false
	}

	idx := (s.cursor.Add(1) - 1) % uint64(len(eligible))
	return eligible[idx], true
}
