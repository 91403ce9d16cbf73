package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"whalecopy/internal/audit"
	"whalecopy/internal/config"
	"whalecopy/internal/marketcache"
	"whalecopy/internal/resubmit"
	"whalecopy/internal/risk"
	"whalecopy/internal/sizer"
	"whalecopy/internal/sportbuffer"
	"whalecopy/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubSigner scripts one SignAndPost result (or error) and records its
// calls; FetchBook always returns an empty book.
type stubSigner struct {
	mu      sync.Mutex
	result  types.OrderResult
	err     error
	calls   int
	lastCtx context.Context
}

func (s *stubSigner) SignAndPost(ctx context.Context, tokenID string, side types.Side, price, size decimal.Decimal, discipline types.OrderDiscipline, expirationUnix int64) (types.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCtx = ctx
	return s.result, s.err
}

func (s *stubSigner) FetchBook(ctx context.Context, tokenID string) (types.Book, error) {
	return types.Book{}, nil
}

func (s *stubSigner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testDeps(t *testing.T, client Signer) *Engine {
	t.Helper()
	al, err := audit.Open(t.TempDir()+"/audit.csv", testLogger())
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(al.Close)

	riskCfg := config.RiskConfig{
		LargeTradeShares:   2000,
		ConsecutiveTrigger: 3,
		SequenceWindowSecs: 40 * time.Second,
		MinDepthBeyondUSD:  200,
		TripDurationSecs:   5 * time.Hour,
	}
	tradingCfg := config.TradingConfig{
		EnableTrading:        true,
		ScalingRatio:         0.02,
		MinWhaleSharesToCopy: 10,
	}
	resubmitCfg := config.ResubmitConfig{PriceIncrement: 0.01, CeilingFraction: 0.02, PacingDelay: 0}

	liveCache := marketcache.New(time.Second, client.(interface {
		FetchMarketIsLive(ctx context.Context, tokenID string) (bool, error)
	}))
	resubmitter := resubmit.New(resubmitCfg, client, al, testLogger())

	e := New(Deps{
		Trading:     tradingCfg,
		Resubmit:    resubmitCfg,
		Risk:        risk.New(riskCfg),
		Sizer:       sizer.New(tradingCfg, config.SizerConfig{Tiers: config.DefaultTiers()}, sportbuffer.New()),
		Client:      client,
		LiveCache:   liveCache,
		Resubmitter: resubmitter,
		Audit:       al,
		Logger:      testLogger(),
	})
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

// fullSigner is a stub satisfying both Signer and the is_live fetch the
// market cache needs, so the engine's resolveIsLive path always degrades
// to a known value rather than blocking on an unimplemented method.
type fullSigner struct {
	stubSigner
	live bool
}

func (f *fullSigner) FetchMarketIsLive(ctx context.Context, tokenID string) (bool, error) {
	return f.live, nil
}

func TestSubmitSkipsWhenTradingDisabled(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	al, err := audit.Open(t.TempDir()+"/audit.csv", testLogger())
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer al.Close()

	riskCfg := config.RiskConfig{
		LargeTradeShares: 2000, ConsecutiveTrigger: 3,
		SequenceWindowSecs: 40 * time.Second, MinDepthBeyondUSD: 200, TripDurationSecs: 5 * time.Hour,
	}
	tradingCfg := config.TradingConfig{EnableTrading: false, ScalingRatio: 0.02, MinWhaleSharesToCopy: 10}
	resubmitCfg := config.ResubmitConfig{PriceIncrement: 0.01, CeilingFraction: 0.02}

	e := New(Deps{
		Trading:     tradingCfg,
		Resubmit:    resubmitCfg,
		Risk:        risk.New(riskCfg),
		Sizer:       sizer.New(tradingCfg, config.SizerConfig{Tiers: config.DefaultTiers()}, sportbuffer.New()),
		Client:      client,
		LiveCache:   marketcache.New(time.Second, client),
		Resubmitter: resubmit.New(resubmitCfg, client, al, testLogger()),
		Audit:       al,
		Logger:      testLogger(),
	})
	e.Start()
	defer e.Stop()

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(100), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "SKIPPED_DISABLED" {
		t.Errorf("status = %q, want SKIPPED_DISABLED", status)
	}
	if client.calls != 0 {
		t.Errorf("signer calls = %d, want 0 when trading is disabled", client.calls)
	}
}

func TestSubmitRejectsBelowMinShares(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	e := testDeps(t, client)

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(1), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != sizer.BelowMinErr {
		t.Errorf("status = %q, want %q", status, sizer.BelowMinErr)
	}
}

// Tests exercising the signing path use 1500 whale shares, which is below
// the risk guard's LargeTradeShares threshold (2000) configured in
// testDeps, so Decide returns Allow without a depth check — otherwise
// every fill here would escalate and immediately block on the stub's
// empty (zero-depth) book.

func TestSubmitFullFillReportsFilled(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.result = types.OrderResult{Success: true, FilledSize: decimal.NewFromInt(30)}
	e := testDeps(t, client)

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(1500), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "FILLED(30)" {
		t.Errorf("status = %q, want FILLED(30)", status)
	}
}

func TestSubmitPartialFillEnqueuesResubmit(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.result = types.OrderResult{Success: true, FilledSize: decimal.NewFromInt(5)}
	e := testDeps(t, client)

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(1500), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "PARTIAL(sent_resubmit)" {
		t.Errorf("status = %q, want PARTIAL(sent_resubmit)", status)
	}
}

func TestSubmitAcceptedDeadlineOrderIsNotResubmitted(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.result = types.OrderResult{Success: true, FilledSize: decimal.Zero}

	al, err := audit.Open(t.TempDir()+"/audit.csv", testLogger())
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer al.Close()

	riskCfg := config.RiskConfig{
		LargeTradeShares: 2000, ConsecutiveTrigger: 3,
		SequenceWindowSecs: 40 * time.Second, MinDepthBeyondUSD: 200, TripDurationSecs: 5 * time.Hour,
	}
	tradingCfg := config.TradingConfig{EnableTrading: true, ScalingRatio: 0.02, MinWhaleSharesToCopy: 10}
	resubmitCfg := config.ResubmitConfig{PriceIncrement: 0.01, CeilingFraction: 0.02, PacingDelay: 0}
	deadlineTiers := []config.TierConfig{{MinShares: 10, PriceBuffer: 0, SizeMultiplier: 1, Discipline: "deadline"}}

	e := New(Deps{
		Trading:     tradingCfg,
		Resubmit:    resubmitCfg,
		Risk:        risk.New(riskCfg),
		Sizer:       sizer.New(tradingCfg, config.SizerConfig{Tiers: deadlineTiers}, sportbuffer.New()),
		Client:      client,
		LiveCache:   marketcache.New(time.Second, client),
		Resubmitter: resubmit.New(resubmitCfg, client, al, testLogger()),
		Audit:       al,
		Logger:      testLogger(),
	})
	e.Start()
	defer e.Stop()

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(1500), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "GTD_SUBMITTED(0)" {
		t.Errorf("status = %q, want GTD_SUBMITTED(0)", status)
	}

	// The order rests at the venue until its deadline; a resubmit chain
	// would have placed a second order within a few milliseconds here.
	time.Sleep(20 * time.Millisecond)
	if got := client.callCount(); got != 1 {
		t.Errorf("signer calls = %d, want 1 (accepted deadline order must not be resubmitted)", got)
	}
}

func TestSubmitSignerErrorReportsStatus(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.err = context.DeadlineExceeded
	e := testDeps(t, client)

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(1500), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "SIGNER_ERR" {
		t.Errorf("status = %q, want SIGNER_ERR", status)
	}
}

func TestSubmitQueueFullReturnsQueueErr(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.result = types.OrderResult{Success: true, FilledSize: decimal.NewFromInt(2000)}

	// Built without Start(): nothing ever drains the queue, so it fills
	// deterministically instead of racing a live worker goroutine.
	al, err := audit.Open(t.TempDir()+"/audit.csv", testLogger())
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer al.Close()
	tradingCfg := config.TradingConfig{EnableTrading: true, ScalingRatio: 0.02, MinWhaleSharesToCopy: 10}
	e := New(Deps{
		Trading: tradingCfg,
		Client:  client,
		Logger:  testLogger(),
		Audit:   al,
	})

	for i := 0; i < queueCapacity; i++ {
		e.queue <- workItem{event: types.FillEvent{}, reply: make(chan string, 1)}
	}

	status := e.Submit(context.Background(), types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(2000), Price: decimal.RequireFromString("0.50"), Side: types.Buy})
	if status != "QUEUE_ERR" {
		t.Errorf("status = %q, want QUEUE_ERR", status)
	}
}

func TestSubmitBlocksAfterRiskGuardTrips(t *testing.T) {
	t.Parallel()
	client := &fullSigner{}
	client.result = types.OrderResult{Success: true, FilledSize: decimal.NewFromInt(2000)}
	e := testDeps(t, client)

	event := types.FillEvent{TokenID: "tok1", Shares: decimal.NewFromInt(2500), Price: decimal.RequireFromString("0.50"), Side: types.Buy}
	// ConsecutiveTrigger is 3 in testDeps, and the stub's empty book gives
	// zero measured depth, so every one of these three large trades is
	// blocked — the first two via the FetchDepth/ResolveDepth escalation,
	// the third directly once the guard's own trip threshold is reached.
	var last string
	for i := 0; i < 3; i++ {
		last = e.Submit(context.Background(), event)
	}
	if last == "" || last[:7] != "BLOCKED" {
		t.Errorf("status = %q, want a BLOCKED_* verdict once the guard trips", last)
	}
}
