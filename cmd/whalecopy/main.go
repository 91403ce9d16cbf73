// whalecopy is a real-time copy-trading engine: it watches one whale
// wallet's fills on a Polymarket-style CLOB over a WebSocket log
// subscription, and mirrors them as sized, risk-checked orders under its
// own wallet.
//
// Architecture:
//
//	main.go                       — entry point: loads config, wires every collaborator, waits for SIGINT/SIGTERM
//	internal/feed/session.go      — WebSocket session: subscribes to OrderFilled logs, auto-reconnects
//	internal/decode/decoder.go    — event decoder: filters and decodes raw log frames into FillEvents
//	internal/risk/guard.go        — risk guard: per-token circuit breaker on trade-sequence velocity
//	internal/sizer/sizer.go       — position sizer: tier table -> local size, price, discipline
//	internal/engine/engine.go     — order engine: single-writer worker that signs and submits
//	internal/resubmit/resubmit.go — resubmitter: bounded retry chain with price escalation
//	internal/audit/audit.go       — audit log: append-only CSV of every decision
//	internal/exchange/            — CLOB REST client, EIP-712/HMAC signer
//	internal/marketcache/         — TTL-bounded is_live lookup fronting the CLOB client
//	internal/sportbuffer/         — static additive price buffer for sports markets
//	internal/healthsrv/           — minimal liveness endpoint
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whalecopy/internal/audit"
	"whalecopy/internal/config"
	"whalecopy/internal/decode"
	"whalecopy/internal/engine"
	"whalecopy/internal/exchange"
	"whalecopy/internal/feed"
	"whalecopy/internal/healthsrv"
	"whalecopy/internal/marketcache"
	"whalecopy/internal/resubmit"
	"whalecopy/internal/risk"
	"whalecopy/internal/sizer"
	"whalecopy/internal/sportbuffer"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("WHALECOPY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	auth, err := exchange.NewAuth(cfg.Wallet)
	if err != nil {
		logger.Error("failed to build wallet signer", "error", err)
		os.Exit(1)
	}

	client := exchange.NewClient(cfg.Feed, cfg.Trading.MockTrading, auth, logger)

	if !auth.HasL2Credentials() && !cfg.Trading.MockTrading {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := client.DeriveAPIKey(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to derive L2 API credentials", "error", err)
			os.Exit(1)
		}
		auth.SetCredentials(*creds)
		logger.Info("derived L2 API credentials from L1 wallet")
	}

	sportBuf, err := sportbuffer.Load(cfg.SportBuffer.Path)
	if err != nil {
		logger.Error("failed to load sport buffer table", "error", err, "path", cfg.SportBuffer.Path)
		os.Exit(1)
	}

	auditLog, err := audit.Open(cfg.Audit.CSVPath, logger)
	if err != nil {
		logger.Error("failed to open audit log", "error", err, "path", cfg.Audit.CSVPath)
		os.Exit(1)
	}

	riskGuard := risk.New(cfg.Risk)
	positionSizer := sizer.New(cfg.Trading, cfg.Sizer, sportBuf)
	liveCache := marketcache.New(cfg.MarketCache.TTL, client)
	resubmitter := resubmit.New(cfg.Resubmit, client, auditLog, logger)

	eng := engine.New(engine.Deps{
		Trading:     cfg.Trading,
		Resubmit:    cfg.Resubmit,
		Risk:        riskGuard,
		Sizer:       positionSizer,
		Client:      client,
		LiveCache:   liveCache,
		Resubmitter: resubmitter,
		Audit:       auditLog,
		Logger:      logger,
	})
	eng.Start()

	decoder := decode.New(cfg.Feed.TargetWhaleAddress)
	session := feed.New(cfg.Feed.WSSURL, decoder, logger)

	feedCtx, feedCancel := context.WithCancel(context.Background())
	go func() {
		if err := session.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			logger.Error("feed session exited", "error", err)
		}
	}()

	go dispatch(feedCtx, session, eng, logger)

	var health *healthsrv.Server
	if cfg.Health.Enabled {
		health = healthsrv.New(cfg.Health.Addr, logger)
		go func() {
			if err := health.Start(); err != nil {
				logger.Error("health server failed", "error", err)
			}
		}()
	}

	if !cfg.Trading.EnableTrading {
		logger.Warn("trading disabled — every fill will be skipped with SKIPPED_DISABLED")
	}
	logger.Info("whalecopy started",
		"target_whale_address", cfg.Feed.TargetWhaleAddress,
		"scaling_ratio", cfg.Trading.ScalingRatio,
		"enable_trading", cfg.Trading.EnableTrading,
		"mock_trading", cfg.Trading.MockTrading,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	feedCancel()
	if health != nil {
		if err := health.Stop(); err != nil {
			logger.Error("failed to stop health server", "error", err)
		}
	}
	eng.Stop()
	auditLog.Close()
}

// dispatch fans every decoded fill event out to the order engine on its own
// goroutine — the feed's single reader must never block on the engine's
// worker queue or a single slow submission would stall every later fill.
func dispatch(ctx context.Context, session *feed.Session, eng *engine.Engine, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-session.Events():
			if !ok {
				return
			}
			go func() {
				status := eng.Submit(ctx, event)
				logger.Debug("fill processed", "token_id", event.TokenID, "status", status)
			}()
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
