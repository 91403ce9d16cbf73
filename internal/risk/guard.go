// Package risk implements the per-token circuit breaker: a consecutive
// large-trade detector with a cooldown-gated trip, plus an on-demand depth
// check escalation. A burst of large fills from the same wallet on one
// market is read as a trap rather than conviction, and the token is banned
// for the cooldown window.
//
// The guard is exclusively owned and called by the order engine's single
// worker goroutine — it holds no internal locking because it is never
// accessed concurrently.
package risk

import (
	"time"

	"whalecopy/internal/config"
	"whalecopy/pkg/types"
)

// tokenState is the per-token mutable state the guard owns.
type tokenState struct {
	largeTradeTimes []time.Time // pruned to the sliding window on every call
	tripped         bool
	tripInstant     time.Time
}

// Guard is the per-token circuit breaker. Construct one per process; it is
// not safe for concurrent use — only the order worker may call it.
type Guard struct {
	cfg config.RiskConfig

	sLarge   float64
	nTrigger int
	wWindow  time.Duration
	dMin     float64
	tTrip    time.Duration

	states map[string]*tokenState
	now    func() time.Time // overridable for tests
}

// New creates a risk guard from the run's fixed configuration.
func New(cfg config.RiskConfig) *Guard {
	return &Guard{
		cfg:      cfg,
		sLarge:   cfg.LargeTradeShares,
		nTrigger: cfg.ConsecutiveTrigger,
		wWindow:  cfg.SequenceWindowSecs,
		dMin:     cfg.MinDepthBeyondUSD,
		tTrip:    cfg.TripDurationSecs,
		states:   make(map[string]*tokenState),
		now:      time.Now,
	}
}

func (g *Guard) stateFor(tokenID string) *tokenState {
	st, ok := g.states[tokenID]
	if !ok {
		st = &tokenState{}
		g.states[tokenID] = st
	}
	return st
}

// Decide returns the guard's verdict for a fill of whaleShares on tokenID.
// A FetchDepth verdict must be resolved by calling ResolveDepth with the
// caller's measured liquidity before the fill may proceed.
func (g *Guard) Decide(tokenID string, whaleShares float64) types.RiskDecision {
	now := g.now()
	st := g.stateFor(tokenID)

	if st.tripped && now.Sub(st.tripInstant) < g.tTrip {
		return types.RiskDecision{Verdict: types.Block, Reason: "TRIPPED"}
	}
	if st.tripped {
		// Cooldown has elapsed; clear the trip before evaluating normally.
		st.tripped = false
	}

	if whaleShares < g.sLarge {
		return types.RiskDecision{Verdict: types.Allow}
	}

	g.pruneLocked(st, now)
	st.largeTradeTimes = append(st.largeTradeTimes, now)

	if len(st.largeTradeTimes) < g.nTrigger {
		return types.RiskDecision{Verdict: types.FetchDepth}
	}

	st.tripped = true
	st.tripInstant = now
	return types.RiskDecision{Verdict: types.Block, Reason: "TRIP"}
}

// pruneLocked drops timestamps outside [now-W, now]. The window uses strict
// half-open semantics: an entry at exactly now-W is evicted.
func (g *Guard) pruneLocked(st *tokenState, now time.Time) {
	cutoff := now.Add(-g.wWindow)
	kept := st.largeTradeTimes[:0]
	for _, ts := range st.largeTradeTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.largeTradeTimes = kept
}

// ResolveDepth is called after a FetchDepth verdict, once the caller has
// measured top-10-level USD liquidity on the fill side. Depth below the
// configured minimum blocks the trade; otherwise it proceeds.
func (g *Guard) ResolveDepth(liquidityUSD float64) types.RiskDecision {
	if liquidityUSD < g.dMin {
		return types.RiskDecision{Verdict: types.Block, Reason: "LOW_LIQUIDITY"}
	}
	return types.RiskDecision{Verdict: types.Allow}
}
