package pool

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"shrike/internal/domain"
)

// Classification is the health state of a proxy candidate.
type Classification uint8

const (
	Untested Classification = iota
	Working
	Failed
)

func (c Classification) String() string {
	switch c {
	case Working:
		return "working"
	case Failed:
		return "failed"
	default:
		return "untested"
	}
}

type record struct {
	endpoint       domain.Endpoint
	country        string
	classification Classification
	successCount   uint64
	attemptCount   uint64
}

// successRatio treats a fresh record as perfect so new candidates are not
// penalized before their first attempt.
func (r *record) successRatio() float64 {
	if r.attemptCount == 0 {
		return 1.0
	}
	return float64(r.successCount) / float64(r.attemptCount)
}

// RecordView is an immutable copy of a record handed to readers.
type RecordView struct {
	Endpoint       domain.Endpoint
	Country        string
	Classification Classification
	SuccessCount   uint64
	AttemptCount   uint64
}

// Stats is the caller-visible pool summary. Safe to marshal directly.
type Stats struct {
	TotalCandidates    int    `json:"total_candidates"`
	WorkingCount       int    `json:"working_count"`
	FailedCount        int    `json:"failed_count"`
	UntestedCount      int    `json:"untested_count"`
	TotalAttempts      uint64 `json:"total_attempts"`
	SuccessfulAttempts uint64 `json:"successful_attempts"`
	FailedAttempts     uint64 `json:"failed_attempts"`
}

// Pool owns the candidate set and every per-proxy counter. All
// classification changes funnel through RecordProbeOutcome and
// RecordDispatchOutcome, which serialize on the pool mutex; concurrent
// reports for the same endpoint are applied in arrival order,
// last-write-wins.
type Pool struct {
	minSample  uint64
	ratioFloor float64

	mu      sync.RWMutex
	records map[domain.Endpoint]*record
	order   []domain.Endpoint

	attemptsIssued    atomic.Uint64
	attemptsSucceeded atomic.Uint64
	attemptsFailed    atomic.Uint64
}

func New(minSample uint64, ratioFloor float64) *Pool {
	return &Pool{
		minSample:  minSample,
		ratioFloor: ratioFloor,
		records:    make(map[domain.Endpoint]*record),
	}
}

// AddCandidates seeds the pool. Duplicates (by endpoint identity) are
// ignored, so the call is idempotent. Returns the number of new records.
func (p *Pool) AddCandidates(endpoints []domain.Endpoint) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, endpoint := range endpoints {
		if _, ok := p.records[endpoint]; ok {
			continue
		}
		p.records[endpoint] = &record{endpoint: endpoint}
		p.order = append(p.order, endpoint)
		added++
	}
	return added
}

// SetCountry attaches a resolved country name to a candidate.
func (p *Pool) SetCountry(endpoint domain.Endpoint, country string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.records[endpoint]; ok {
		r.country = country
	}
}

// RecordProbeOutcome applies an out-of-band probe result. A successful
// probe always moves the candidate to Working; this is the only path that
// recovers a Failed proxy. A failed probe always moves it to Failed.
func (p *Pool) RecordProbeOutcome(endpoint domain.Endpoint, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[endpoint]
	if !ok {
		return
	}

	r.attemptCount++
	previous := r.classification
	if success {
		r.successCount++
		r.classification = Working
	} else {
		r.classification = Failed
	}

	if previous != r.classification {
		log.Debug("proxy reclassified by probe",
			"proxy", endpoint.URL(), "from", previous, "to", r.classification)
	}
}

// RecordDispatchOutcome applies a live-traffic result. A single failure
// never evicts a Working proxy; eviction is performance based, requiring
// at least minSample attempts and a success ratio strictly below the
// floor. Live traffic never promotes: a Failed proxy only returns to
// Working through a probe, and an Untested proxy stays Untested until its
// first probe.
func (p *Pool) RecordDispatchOutcome(endpoint domain.Endpoint, success bool) {
	p.countAttempt(success)

	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.records[endpoint]
	if !ok {
		return
	}

	r.attemptCount++
	if success {
		r.successCount++
	}

	if r.classification != Failed && r.attemptCount >= p.minSample && r.successRatio() < p.ratioFloor {
		log.Info("proxy evicted for poor performance",
			"proxy", endpoint.URL(),
			"attempts", r.attemptCount,
			"successes", r.successCount)
		r.classification = Failed
	}
}

// RecordDirectOutcome accounts for a proxy-less fallback attempt. Only the
// aggregate counters move; there is no record to reclassify.
func (p *Pool) RecordDirectOutcome(success bool) {
	p.countAttempt(success)
}

func (p *Pool) countAttempt(success bool) {
	p.attemptsIssued.Add(1)
	if success {
		p.attemptsSucceeded.Add(1)
	} else {
		p.attemptsFailed.Add(1)
	}
}

// Classification reports the current state of a candidate.
func (p *Pool) Classification(endpoint domain.Endpoint) (Classification, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.records[endpoint]
	if !ok {
		return Untested, false
	}
	return r.classification, true
}

// Eligible returns the endpoints selectable for dispatch, in insertion
// order. Untested candidates are treated as usable until a probe says
// otherwise.
func (p *Pool) Eligible() []domain.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eligible := make([]domain.Endpoint, 0, len(p.order))
	for _, endpoint := range p.order {
		if p.records[endpoint].classification != Failed {
			eligible = append(eligible, endpoint)
		}
	}
	return eligible
}

// NotWorking returns the candidates the background sweep should probe:
// everything not currently confirmed Working, in insertion order.
func (p *Pool) NotWorking() []domain.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pending := make([]domain.Endpoint, 0, len(p.order))
	for _, endpoint := range p.order {
		if p.records[endpoint].classification != Working {
			pending = append(pending, endpoint)
		}
	}
	return pending
}

// Candidates returns every seeded endpoint in insertion order.
func (p *Pool) Candidates() []domain.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.Endpoint, len(p.order))
	copy(out, p.order)
	return out
}

// WorkingRecords returns copies of the records currently classified
// Working, capped at limit (0 means no cap).
func (p *Pool) WorkingRecords(limit int) []RecordView {
	p.mu.RLock()
	defer p.mu.RUnlock()

	views := make([]RecordView, 0, limit)
	for _, endpoint := range p.order {
		r := p.records[endpoint]
		if r.classification != Working {
			continue
		}
		views = append(views, RecordView{
			Endpoint:       r.endpoint,
			Country:        r.country,
			Classification: r.classification,
			SuccessCount:   r.successCount,
			AttemptCount:   r.attemptCount,
		})
		if limit > 0 && len(views) == limit {
			break
		}
	}
	return views
}

// SnapshotStats is a pure read, safe to call concurrently with dispatch
// traffic.
func (p *Pool) SnapshotStats() Stats {
	p.mu.RLock()
	stats := Stats{TotalCandidates: len(p.order)}
	for _, r := range p.records {
		switch r.classification {
		case Working:
			stats.WorkingCount++
		case Failed:
			stats.FailedCount++
		default:
			stats.UntestedCount++
		}
	}
	p.mu.RUnlock()

	stats.TotalAttempts = p.attemptsIssued.Load()
	stats.SuccessfulAttempts = p.attemptsSucceeded.Load()
	stats.FailedAttempts = p.attemptsFailed.Load()
	return stats
}
