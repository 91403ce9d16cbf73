// Package resubmit implements the resubmitter: a bounded retry chain that
// chases partial or missed fills, escalating price by a fixed increment on
// the largest tier's first retry only, and switching from immediate
// (fill-and-kill) to a deadline (good-till-date) order on the final
// attempt so a maker-side resting order may still catch a later taker.
//
// The chain is tail-recursive through a channel-backed queue, not a call
// stack: each attempt that needs another retry is re-enqueued and picked
// up by the same goroutine, so retry depth never grows the Go call stack.
package resubmit

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"whalecopy/internal/audit"
	"whalecopy/internal/config"
	"whalecopy/pkg/types"
)

// queueCapacity is effectively unbounded: chain depth is naturally limited
// by the attempt budget per live order times concurrent chains, so a
// generous fixed buffer never fills under normal operation.
const queueCapacity = 4096

const (
	liveDeadline    = 61 * time.Second
	restingDeadline = 1800 * time.Second

	bookSnapshotTimeout = 500 * time.Millisecond
)

var (
	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.RequireFromString("0.99")
)

// Submitter is the subset of the CLOB collaborator the resubmitter needs:
// placing an order and taking a best-effort book snapshot for the audit
// row. Satisfied by *exchange.Client.
type Submitter interface {
	SignAndPost(ctx context.Context, tokenID string, side types.Side, price, size decimal.Decimal, discipline types.OrderDiscipline, expirationUnix int64) (types.OrderResult, error)
	FetchBook(ctx context.Context, tokenID string) (types.Book, error)
}

// Resubmitter owns the retry queue and the single goroutine that drains
// it. Construct one per process with New and start it with Run.
type Resubmitter struct {
	queue  chan types.ResubmitRequest
	client Submitter
	audit  *audit.Log
	cfg    config.ResubmitConfig
	logger *slog.Logger
	now    func() time.Time
	pacing time.Duration
}

// New builds a resubmitter. cfg.PacingDelay is the inter-submission pacing
// delay; cfg.PriceIncrement and cfg.CeilingFraction tune the price
// escalation policy.
func New(cfg config.ResubmitConfig, client Submitter, auditLog *audit.Log, logger *slog.Logger) *Resubmitter {
	return &Resubmitter{
		queue:  make(chan types.ResubmitRequest, queueCapacity),
		client: client,
		audit:  auditLog,
		cfg:    cfg,
		logger: logger.With("component", "resubmit"),
		now:    time.Now,
		pacing: cfg.PacingDelay,
	}
}

// Enqueue submits the first or next attempt of a resubmit chain. It never
// blocks the caller: if the queue's generous buffer is somehow exhausted,
// the chain is conceded and logged rather than backpressuring the order
// worker that called it.
func (r *Resubmitter) Enqueue(req types.ResubmitRequest) {
	select {
	case r.queue <- req:
	default:
		r.logger.Error("resubmit queue full, conceding chain", "chain_id", req.ChainID, "token_id", req.TokenID)
	}
}

// Run drains the retry queue until ctx is cancelled. It is meant to run in
// its own long-lived goroutine.
func (r *Resubmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			r.attempt(ctx, req)
		}
	}
}

// maxAttemptsFor returns the chain's total submission budget, counting the
// original order the engine placed before handing the residual to this
// resubmitter — the largest tier (whale shares >= 4000) gets one extra
// attempt. Since req.Attempt starts at 1 for the first retry (the chain's
// second submission overall), the resubmitter's own attempt budget is
// maxAttempts-1; see isLastAttempt.
func maxAttemptsFor(whaleShares decimal.Decimal) int {
	if whaleShares.GreaterThanOrEqual(decimal.NewFromInt(4000)) {
		return 5
	}
	return 4
}

func (r *Resubmitter) attempt(ctx context.Context, req types.ResubmitRequest) {
	if r.pacing > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pacing):
		}
	}

	maxAttempts := maxAttemptsFor(req.WhaleShares)
	isLastAttempt := req.Attempt >= maxAttempts-1

	increment := decimal.Zero
	if req.WhaleShares.GreaterThanOrEqual(decimal.NewFromInt(4000)) && req.Attempt == 1 {
		increment = decimal.NewFromFloat(r.cfg.PriceIncrement)
	}

	candidate := req.FailedPrice.Add(increment)
	if req.Side == types.Sell {
		candidate = req.FailedPrice.Sub(increment)
	}
	candidate = clamp(candidate)

	if !isLastAttempt && ceilingBreached(req.Side, candidate, req.MaxPrice) {
		r.logAudit(req, "ABORT_PRICE_CEIL", decimal.Zero, candidate, types.Book{})
		return
	}

	discipline := types.Immediate
	var deadlineUnix int64
	if isLastAttempt {
		discipline = types.Deadline
		horizon := restingDeadline
		if req.IsLive.Bool() {
			horizon = liveDeadline
		}
		deadlineUnix = r.now().Add(horizon).Unix()
	}

	result, err := r.client.SignAndPost(ctx, req.TokenID, req.Side, candidate, req.RemainingSize, discipline, deadlineUnix)
	if err != nil {
		r.logAudit(req, "RESUBMIT_SIGNER_ERR", decimal.Zero, candidate, types.Book{})
		return
	}

	book := r.snapshotBook(ctx, req.TokenID)
	filled := result.FilledSize

	if filled.GreaterThanOrEqual(req.RemainingSize) {
		r.logAudit(req, "RESUBMIT_FILLED", filled, candidate, book)
		return
	}

	if isLastAttempt {
		status := "EXHAUSTED"
		if discipline == types.Deadline {
			status = "GTD_SUBMITTED"
		}
		r.logAudit(req, status, filled, candidate, book)
		return
	}

	next := req
	next.Attempt++
	next.FailedPrice = candidate
	next.CumulativeFilled = req.CumulativeFilled.Add(filled)
	next.RemainingSize = req.RemainingSize.Sub(filled)

	r.logAudit(req, "RESUBMIT_PARTIAL", filled, candidate, book)
	r.Enqueue(next)
}

func ceilingBreached(side types.Side, candidate, maxPrice decimal.Decimal) bool {
	if side == types.Buy {
		return candidate.GreaterThan(maxPrice)
	}
	return candidate.LessThan(maxPrice)
}

func clamp(price decimal.Decimal) decimal.Decimal {
	if price.LessThan(minPrice) {
		return minPrice
	}
	if price.GreaterThan(maxPrice) {
		return maxPrice
	}
	return price
}

func (r *Resubmitter) snapshotBook(ctx context.Context, tokenID string) types.Book {
	bctx, cancel := context.WithTimeout(ctx, bookSnapshotTimeout)
	defer cancel()
	book, err := r.client.FetchBook(bctx, tokenID)
	if err != nil {
		return types.Book{}
	}
	return book
}

func (r *Resubmitter) logAudit(req types.ResubmitRequest, status string, filled, price decimal.Decimal, book types.Book) {
	if r.audit == nil {
		return
	}
	bidPrice, bidSize, askPrice, askSize, ok := book.TopOfBook()
	row := audit.Row{
		Timestamp: r.now(),
		TokenID:   req.TokenID,
		USDValue:  filled.Mul(price).String(),
		Shares:    filled.String(),
		Price:     price.String(),
		Side:      req.Side,
		Status:    status,
		IsLive:    req.IsLive,
		ChainID:   req.ChainID,
	}
	if ok {
		row.TopBidPrice = bidPrice.String()
		row.TopBidSize = bidSize.String()
		row.TopAskPrice = askPrice.String()
		row.TopAskSize = askSize.String()
	}
	r.audit.Log(row)
}
