// Package sizer implements the position sizer: a pure, synchronous
// transform from a whale fill to a local order size, price, and discipline.
// It holds no state beyond the static tier table and scaling configuration
// loaded at startup, so it needs no locking and is safe to share across
// goroutines by reference.
package sizer

import (
	"time"

	"github.com/shopspring/decimal"

	"whalecopy/internal/config"
	"whalecopy/internal/sportbuffer"
	"whalecopy/pkg/types"
)

const (
	minPrice = "0.01"
	maxPrice = "0.99"

	// liveDeadline and restingDeadline are the two time-in-force horizons a
	// Deadline-discipline tier can select from: short for in-play markets
	// where odds decay fast, long otherwise.
	liveDeadline    = 61 * time.Second
	restingDeadline = 1800 * time.Second
)

// BelowMinErr is the rejection reason returned when whale_shares falls
// below every configured tier.
const BelowMinErr = "BELOW_MIN"

// Sizer computes local order parameters from a tier table and process-wide
// scaling configuration. It is pure and safe for concurrent use — every
// method is a read-only transform of its own immutable fields.
type Sizer struct {
	scalingRatio decimal.Decimal
	minShares    decimal.Decimal
	tiers        []tier
	sportBuf     *sportbuffer.Buffer
	now          func() time.Time
}

type tier struct {
	minShares      decimal.Decimal
	priceBuffer    decimal.Decimal
	sizeMultiplier decimal.Decimal
	discipline     types.OrderDiscipline
}

// New builds a Sizer from the run's configuration. cfg.Sizer.Tiers must
// already be ordered by descending MinShares (config.Validate enforces
// this).
func New(trading config.TradingConfig, sizerCfg config.SizerConfig, sportBuf *sportbuffer.Buffer) *Sizer {
	tiers := make([]tier, 0, len(sizerCfg.Tiers))
	for _, tc := range sizerCfg.Tiers {
		discipline := types.Immediate
		if tc.Discipline == "deadline" {
			discipline = types.Deadline
		}
		tiers = append(tiers, tier{
			minShares:      decimal.NewFromFloat(tc.MinShares),
			priceBuffer:    decimal.NewFromFloat(tc.PriceBuffer),
			sizeMultiplier: decimal.NewFromFloat(tc.SizeMultiplier),
			discipline:     discipline,
		})
	}
	return &Sizer{
		scalingRatio: decimal.NewFromFloat(trading.ScalingRatio),
		minShares:    decimal.NewFromFloat(trading.MinWhaleSharesToCopy),
		tiers:        tiers,
		sportBuf:     sportBuf,
		now:          time.Now,
	}
}

// Size computes the local order parameters for one fill event. It returns
// ok=false with reason BelowMinErr if whaleShares matches no configured
// tier.
func (s *Sizer) Size(event types.FillEvent) (types.SizeResult, string, bool) {
	t, ok := s.selectTier(event.Shares)
	if !ok {
		return types.SizeResult{}, BelowMinErr, false
	}

	localSize := event.Shares.Mul(s.scalingRatio).Mul(t.sizeMultiplier)

	buffer := t.priceBuffer.Add(decimal.NewFromFloat(s.sportBuf.Lookup(event.TokenID)))
	var rawPrice decimal.Decimal
	if event.Side == types.Buy {
		rawPrice = event.Price.Add(buffer)
	} else {
		rawPrice = event.Price.Sub(buffer)
	}
	localPrice := clamp(rawPrice)

	result := types.SizeResult{
		LocalSize:  localSize,
		LocalPrice: localPrice,
		Discipline: t.discipline,
	}
	if t.discipline == types.Deadline {
		horizon := restingDeadline
		if event.IsLive.Bool() {
			horizon = liveDeadline
		}
		result.Deadline = s.now().Add(horizon)
	}
	return result, "", true
}

// selectTier returns the first tier whose minShares <= whaleShares; tiers
// are checked in the configured (descending) order, so the first match is
// always the tightest-fitting tier.
func (s *Sizer) selectTier(whaleShares decimal.Decimal) (tier, bool) {
	if whaleShares.LessThan(s.minShares) {
		return tier{}, false
	}
	for _, t := range s.tiers {
		if whaleShares.GreaterThanOrEqual(t.minShares) {
			return t, true
		}
	}
	return tier{}, false
}

func clamp(price decimal.Decimal) decimal.Decimal {
	lo := decimal.RequireFromString(minPrice)
	hi := decimal.RequireFromString(maxPrice)
	if price.LessThan(lo) {
		return lo
	}
	if price.GreaterThan(hi) {
		return hi
	}
	return price
}
