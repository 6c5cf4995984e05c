package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"leverage-agent/internal/agent"
	"leverage-agent/internal/bus"
	"leverage-agent/internal/config"
	"leverage-agent/internal/exchange"
	"leverage-agent/internal/journal"
	"leverage-agent/internal/logger"
	"leverage-agent/internal/market"
	"leverage-agent/internal/metrics"
	"leverage-agent/internal/oracle"
	"leverage-agent/internal/position"
	"leverage-agent/internal/risk"
	"leverage-agent/internal/signals"
	"leverage-agent/internal/store"
	"leverage-agent/internal/survival"
	"leverage-agent/internal/trace"
)

// run wires the components together and blocks until shutdown.
func run(ctx context.Context, configPath string) error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(shutdownCtx)
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode, orders are simulated")
	}

	j, err := journal.Open(cfg.Store.JournalFile)
	if err != nil {
		logger.Warn(ctx, "Journal unavailable, continuing without it", "error", err)
		j = nil
	} else {
		defer j.Close()
	}

	b := bus.New()
	st := store.New(cfg.Store.PositionsFile, cfg.Store.StateFile)
	ex := buildExchange(ctx, cfg)
	posMgr := position.NewManager(b, st, j, ex, cfg.Exchange)
	vitals := survival.New(b, cfg.InitialBalance, cfg.Survival.HysteresisThreshold)
	riskMgr := risk.New(risk.Limits{
		MaxLeverage:        cfg.Risk.MaxLeverage,
		MaxPositions:       cfg.Risk.MaxPositions,
		MinConfidence:      cfg.Risk.MinConfidence,
		DefaultRiskPercent: cfg.Risk.DefaultRiskPercent,
		MaxExposurePercent: cfg.Risk.MaxExposurePercent,
		MaxPerAssetPercent: cfg.Risk.MaxPerAssetPercent,
	})

	feed := market.NewFeed(b, market.Config{
		Symbols:              cfg.Symbols,
		StreamURL:            cfg.Feed.StreamURL,
		RestURL:              cfg.Feed.RestURL,
		PollInterval:         time.Duration(cfg.Feed.PollSeconds) * time.Second,
		ConnectTimeout:       time.Duration(cfg.Feed.ConnectTimeoutSeconds) * time.Second,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		ReconnectBase:        time.Duration(cfg.Feed.ReconnectBaseMs) * time.Millisecond,
		ReconnectMax:         time.Duration(cfg.Feed.ReconnectMaxMs) * time.Millisecond,
		RSIPeriod:            cfg.Feed.RSIPeriod,
		ATRPeriod:            cfg.Feed.ATRPeriod,
	})

	reader := signals.NewReader(cfg.Agent.SignalsFile, cfg.SignalWindow())
	if cfg.Scraper.Enabled {
		scraper := signals.NewScraper(cfg.Agent.SignalsFile, 30*time.Second)
		go scraper.Run(ctx, time.Duration(cfg.Scraper.IntervalMinutes)*time.Minute)
	}

	orchestrator := agent.New(agent.Config{
		InitialBalance: cfg.InitialBalance,
		BaseInterval:   cfg.BaseInterval(),
	}, b, feed, riskMgr, vitals, posMgr, buildDecider(ctx, cfg), reader, st, j, ex)

	metrics.Serve(ctx, cfg.Metrics.ListenAddr)
	feed.Start(ctx)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info(ctx, "Signal received, stopping", "signal", s.String())
		orchestrator.Stop()
	}()

	orchestrator.Run(ctx)
	return nil
}

// buildDecider selects the oracle provider; no provider means the noop
// decider, which always holds.
func buildDecider(ctx context.Context, cfg *config.Config) oracle.Decider {
	oc := oracle.Config{
		Model:       cfg.Oracle.Model,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Temperature: cfg.Oracle.Temperature,
		System:      cfg.Oracle.System,
	}
	timeout := time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second
	switch cfg.Oracle.Provider {
	case "CLAUDE":
		return oracle.NewClaudeDecider(oc, timeout)
	case "OPENAI":
		return oracle.NewOpenAIDecider(oc, timeout)
	default:
		logger.Warn(ctx, "No oracle provider configured, using noop decider (always HOLD)")
		return oracle.NewNoop()
	}
}

// buildExchange returns the execution venue. Live connectivity is
// injected here; the core only ever sees the interface.
func buildExchange(ctx context.Context, cfg *config.Config) exchange.Exchange {
	if cfg.Mode == "LIVE" {
		logger.Warn(ctx, "LIVE mode configured but no live exchange adapter is wired, using simulator")
	}
	return exchange.NewSim()
}
