// Package engine implements the order engine: the single-writer worker
// that turns a decoded whale fill into a sized, risk-checked, signed
// order.
//
// A bounded channel decouples the WebSocket pump from one worker
// goroutine, which is the exclusive owner of the risk guard's in-memory
// state and places every first order. Retry orders are posted through the
// same client by the resubmitter on its own goroutine. Each submission carries a
// one-shot, buffer-1 reply channel so the caller can await a result with a
// timeout without blocking the worker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whalecopy/internal/audit"
	"whalecopy/internal/config"
	"whalecopy/internal/marketcache"
	"whalecopy/internal/resubmit"
	"whalecopy/internal/risk"
	"whalecopy/internal/sizer"
	"whalecopy/pkg/types"
)

const (
	queueCapacity = 1024
	replyTimeout  = 10 * time.Second
	depthTimeout  = 500 * time.Millisecond
	liveTimeout   = 2 * time.Second
	bookTimeout   = 500 * time.Millisecond
)

// Signer is the subset of the CLOB collaborator the order worker calls
// directly. Satisfied by *exchange.Client.
type Signer interface {
	SignAndPost(ctx context.Context, tokenID string, side types.Side, price, size decimal.Decimal, discipline types.OrderDiscipline, expirationUnix int64) (types.OrderResult, error)
	FetchBook(ctx context.Context, tokenID string) (types.Book, error)
}

type workItem struct {
	event types.FillEvent
	reply chan string
}

// Engine is the order engine. Construct one with New, start its worker and
// the resubmitter with Start, and Submit decoded fill events to it; it
// will never call the signer from any goroutine but its own.
type Engine struct {
	queue           chan workItem
	enableTrading   bool
	ceilingFraction decimal.Decimal

	risk        *risk.Guard
	sizer       *sizer.Sizer
	client      Signer
	liveCache   *marketcache.Cache
	resubmitter *resubmit.Resubmitter
	audit       *audit.Log
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the order engine from its already-constructed collaborators.
// Deps is a flat struct: every field is a concrete collaborator the worker
// is allowed to call.
type Deps struct {
	Trading     config.TradingConfig
	Resubmit    config.ResubmitConfig
	Risk        *risk.Guard
	Sizer       *sizer.Sizer
	Client      Signer
	LiveCache   *marketcache.Cache
	Resubmitter *resubmit.Resubmitter
	Audit       *audit.Log
	Logger      *slog.Logger
}

// New builds an Engine ready to Start.
func New(d Deps) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:           make(chan workItem, queueCapacity),
		enableTrading:   d.Trading.EnableTrading,
		ceilingFraction: decimal.NewFromFloat(d.Resubmit.CeilingFraction),
		risk:            d.Risk,
		sizer:           d.Sizer,
		client:          d.Client,
		liveCache:       d.LiveCache,
		resubmitter:     d.Resubmitter,
		audit:           d.Audit,
		logger:          d.Logger.With("component", "engine"),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start launches the worker goroutine and the resubmitter's goroutine.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.resubmitter.Run(e.ctx)
	}()
}

// Stop cancels the worker and resubmitter and waits for both to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// Submit enqueues a decoded fill event and blocks the caller (not the
// worker) until a result is available or replyTimeout elapses. A full
// queue fails synchronously with "QUEUE_ERR"; trading disabled short-
// circuits before enqueuing with "SKIPPED_DISABLED".
func (e *Engine) Submit(ctx context.Context, event types.FillEvent) string {
	if !e.enableTrading {
		return "SKIPPED_DISABLED"
	}

	item := workItem{event: event, reply: make(chan string, 1)}
	select {
	case e.queue <- item:
	default:
		return "QUEUE_ERR"
	}

	select {
	case status := <-item.reply:
		return status
	case <-time.After(replyTimeout):
		return "WORKER_TIMEOUT"
	case <-ctx.Done():
		return "WORKER_TIMEOUT"
	}
}

// run is the single worker goroutine. It processes items strictly in
// arrival order; nothing else ever reads e.queue or calls e.client or
// e.risk.
func (e *Engine) run() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case item := <-e.queue:
			e.process(item)
		}
	}
}

func (e *Engine) process(item workItem) {
	event := item.event
	whaleShares, _ := event.Shares.Float64()

	decision := e.risk.Decide(event.TokenID, whaleShares)
	if decision.Verdict == types.FetchDepth {
		depth := e.queryDepth(event)
		decision = e.risk.ResolveDepth(depth)
	}
	if decision.Verdict == types.Block {
		status := "BLOCKED_" + decision.Reason
		e.finish(item, event, status, types.Book{}, "")
		return
	}

	event.IsLive = e.resolveIsLive(event.TokenID)

	sized, reason, ok := e.sizer.Size(event)
	if !ok {
		e.finish(item, event, reason, types.Book{}, "")
		return
	}

	var deadlineUnix int64
	if sized.Discipline == types.Deadline {
		deadlineUnix = sized.Deadline.Unix()
	}

	result, err := e.client.SignAndPost(e.ctx, event.TokenID, event.Side, sized.LocalPrice, sized.LocalSize, sized.Discipline, deadlineUnix)
	if err != nil {
		e.finish(item, event, "SIGNER_ERR", types.Book{}, "")
		return
	}

	book := e.snapshotBook(event.TokenID)

	if result.FilledSize.GreaterThanOrEqual(sized.LocalSize) {
		status := fmt.Sprintf("FILLED(%s)", result.FilledSize.String())
		e.finish(item, event, status, book, "")
		return
	}

	// An accepted deadline order rests at the venue until it expires; the
	// unfilled remainder is already working, so chasing it with a resubmit
	// chain would double the position.
	if sized.Discipline == types.Deadline && result.Success {
		status := fmt.Sprintf("GTD_SUBMITTED(%s)", result.FilledSize.String())
		e.finish(item, event, status, book, "")
		return
	}

	chainID := uuid.New().String()
	e.resubmitter.Enqueue(types.ResubmitRequest{
		ChainID:          chainID,
		TokenID:          event.TokenID,
		Side:             event.Side,
		OriginalSize:     sized.LocalSize,
		RemainingSize:    sized.LocalSize.Sub(result.FilledSize),
		CumulativeFilled: result.FilledSize,
		WhalePrice:       event.Price,
		FailedPrice:      sized.LocalPrice,
		MaxPrice:         e.maxPrice(event.Side, event.Price),
		WhaleShares:      event.Shares,
		Attempt:          1,
		IsLive:           event.IsLive,
	})

	e.finish(item, event, "PARTIAL(sent_resubmit)", book, chainID)
}

// maxPrice is the retry chain's ceiling (buy) or floor (sell), fixed once
// at chain construction.
func (e *Engine) maxPrice(side types.Side, whalePrice decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == types.Buy {
		return whalePrice.Mul(one.Add(e.ceilingFraction))
	}
	floor := whalePrice.Mul(one.Sub(e.ceilingFraction))
	minPrice := decimal.RequireFromString("0.01")
	if floor.LessThan(minPrice) {
		return minPrice
	}
	return floor
}

func (e *Engine) queryDepth(event types.FillEvent) float64 {
	ctx, cancel := context.WithTimeout(e.ctx, depthTimeout)
	defer cancel()
	book, err := e.client.FetchBook(ctx, event.TokenID)
	if err != nil {
		return 0 // transport failure degrades to insufficient depth
	}
	depth, _ := book.DepthUSD(event.Side).Float64()
	return depth
}

func (e *Engine) resolveIsLive(tokenID string) types.TriState {
	ctx, cancel := context.WithTimeout(e.ctx, liveTimeout)
	defer cancel()
	if e.liveCache.IsLive(ctx, tokenID) {
		return types.True
	}
	return types.False
}

func (e *Engine) snapshotBook(tokenID string) types.Book {
	ctx, cancel := context.WithTimeout(e.ctx, bookTimeout)
	defer cancel()
	book, err := e.client.FetchBook(ctx, tokenID)
	if err != nil {
		return types.Book{}
	}
	return book
}

func (e *Engine) finish(item workItem, event types.FillEvent, status string, book types.Book, chainID string) {
	item.reply <- status
	e.logAudit(event, status, book, chainID)
}

func (e *Engine) logAudit(event types.FillEvent, status string, book types.Book, chainID string) {
	if e.audit == nil {
		return
	}
	row := audit.Row{
		Timestamp:   time.Now(),
		BlockNumber: event.BlockNumber,
		TokenID:     event.TokenID,
		USDValue:    event.USDValue.String(),
		Shares:      event.Shares.String(),
		Price:       event.Price.String(),
		Side:        event.Side,
		Status:      status,
		TxHash:      event.TxHash,
		IsLive:      event.IsLive,
		ChainID:     chainID,
	}
	if bidPrice, bidSize, askPrice, askSize, ok := book.TopOfBook(); ok {
		row.TopBidPrice = bidPrice.String()
		row.TopBidSize = bidSize.String()
		row.TopAskPrice = askPrice.String()
		row.TopAskSize = askSize.String()
	}
	e.audit.Log(row)
}
