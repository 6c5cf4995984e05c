// Package agent contains the orchestrator: the sole looping component
// and composition root of the trading core. Each cycle gathers external
// signals, asks the decision oracle for a verdict, filters it through
// the risk policy, executes what survives and feeds the resulting
// equity back into the survival state machine.
package agent

import (
	"context"
	"math"
	"sync"
	"time"

	"leverage-agent/internal/bus"
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
	"leverage-agent/internal/types"
)

const (
	// minCycleDelay floors the pacing computation.
	minCycleDelay = time.Second
	// persistEvery is how many cycles pass between state snapshots.
	persistEvery = 5
	// atrStopMult and rewardRiskRatio shape protective levels on entry.
	atrStopMult     = 2.0
	rewardRiskRatio = 2.0
)

// pacingMultipliers stretch or compress the cycle interval by survival
// state. CRITICAL never paces a next cycle; it shuts the loop down.
var pacingMultipliers = map[types.SurvivalState]float64{
	types.StateGrowth:    0.5,
	types.StateSurvival:  1.0,
	types.StateRecovery:  1.3,
	types.StateDefensive: 2.0,
}

type Config struct {
	InitialBalance float64
	BaseInterval   time.Duration
}

type Orchestrator struct {
	cfg Config

	bus     *bus.Bus
	feed    *market.Feed
	riskMgr *risk.Manager
	vitals  *survival.Manager
	posMgr  *position.Manager
	decider oracle.Decider
	reader  *signals.Reader
	store   *store.Store
	journal *journal.Journal // optional
	ex      exchange.Exchange

	cycle int

	stopOnce    sync.Once
	stopCh      chan struct{}
	critical    bool
	criticalMu  sync.Mutex
	shutdownSub *bus.Subscription
}

func New(cfg Config, b *bus.Bus, feed *market.Feed, rm *risk.Manager, sm *survival.Manager,
	pm *position.Manager, decider oracle.Decider, reader *signals.Reader,
	st *store.Store, j *journal.Journal, ex exchange.Exchange) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		bus:     b,
		feed:    feed,
		riskMgr: rm,
		vitals:  sm,
		posMgr:  pm,
		decider: decider,
		reader:  reader,
		store:   st,
		journal: j,
		ex:      ex,
		stopCh:  make(chan struct{}),
	}
	o.shutdownSub = b.Subscribe(bus.TopicSurvivalShutdown, func(ctx context.Context, _ any) {
		o.criticalMu.Lock()
		o.critical = true
		o.criticalMu.Unlock()
		o.requestStop()
	})
	return o
}

// Stop requests an orderly shutdown from outside the loop.
func (o *Orchestrator) Stop() { o.requestStop() }

func (o *Orchestrator) requestStop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// Run executes cycles until a shutdown is requested or the context is
// cancelled, then performs the orderly shutdown sequence. Blocking.
func (o *Orchestrator) Run(ctx context.Context) {
	o.warmStart(ctx)
	logger.Info(ctx, "Agent loop started",
		"base_interval", o.cfg.BaseInterval, "initial_balance", o.cfg.InitialBalance)

	for {
		select {
		case <-o.stopCh:
			o.shutdown(ctx)
			return
		case <-ctx.Done():
			o.requestStop()
			o.shutdown(context.WithoutCancel(ctx))
			return
		default:
		}

		start := time.Now()
		o.cycle++
		o.runCycle(ctx)
		metrics.CyclesTotal.Inc()

		state := o.vitals.State()
		if state == types.StateCritical {
			// The shutdown subscription already tripped stopCh.
			continue
		}
		delay := o.nextDelay(state, time.Since(start))
		select {
		case <-o.stopCh:
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
}

// nextDelay implements max(1s, base*stateMultiplier - elapsed).
func (o *Orchestrator) nextDelay(state types.SurvivalState, elapsed time.Duration) time.Duration {
	mult, ok := pacingMultipliers[state]
	if !ok {
		mult = 1.0
	}
	d := time.Duration(float64(o.cfg.BaseInterval)*mult) - elapsed
	if d < minCycleDelay {
		d = minCycleDelay
	}
	return d
}

// runCycle runs one gather-decide-filter-execute-monitor pass. No step
// failure may crash the loop; each is logged with the cycle number.
func (o *Orchestrator) runCycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "agent-cycle")
	defer span.End()

	sigs := o.reader.Recent(ctx, time.Now().UTC())
	decision := o.decide(ctx, sigs)
	metrics.DecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
	logger.Info(ctx, "Cycle decision",
		"cycle", o.cycle, "action", decision.Action, "symbol", decision.Symbol,
		"confidence", decision.Confidence, "urgency", decision.Urgency,
		"reasoning", decision.Reasoning)

	o.execute(ctx, decision)
	o.monitor(ctx)
}

// decide builds the cycle context and consults the oracle. A failed or
// malformed call degrades to HOLD with the error as the reasoning.
func (o *Orchestrator) decide(ctx context.Context, sigs []types.Signal) types.Decision {
	tc := oracle.TradingContext{
		MarketData:    o.feed.Snapshot(),
		Signals:       sigs,
		Positions:     o.posMgr.Live(),
		SurvivalState: o.vitals.State(),
		Balance:       o.vitals.CurrentBalance(),
		PnL:           o.vitals.PnL(),
	}
	d, err := o.decider.Decide(ctx, tc)
	if err != nil {
		logger.ErrorWithErr(ctx, "Oracle decision failed, holding", err, "cycle", o.cycle)
		return oracle.Hold(err.Error())
	}
	return d
}

// execute risk-filters the decision and applies it through the exchange
// and the position manager.
func (o *Orchestrator) execute(ctx context.Context, d types.Decision) {
	switch d.Action {
	case types.ActionHold:
		return
	case types.ActionClose:
		o.executeClose(ctx, d)
		return
	case types.ActionBuy, types.ActionSell:
	default:
		return
	}

	portfolio := o.portfolio()
	verdict := o.riskMgr.CanOpenPosition(ctx, d, portfolio, o.vitals.State())
	if !verdict.Allowed {
		metrics.RiskDenialsTotal.Inc()
		logger.Info(ctx, "Decision denied by risk policy",
			"cycle", o.cycle, "symbol", d.Symbol, "reason", verdict.Reason)
		return
	}
	o.executeOpen(ctx, d, verdict)
}

func (o *Orchestrator) executeClose(ctx context.Context, d types.Decision) {
	targets := o.posMgr.Live()
	if d.Symbol != "" {
		targets = o.posMgr.BySymbol(d.Symbol)
	}
	if len(targets) == 0 {
		logger.Info(ctx, "CLOSE with no matching positions", "cycle", o.cycle, "symbol", d.Symbol)
		return
	}
	for _, p := range targets {
		if o.ex != nil {
			if err := o.ex.Close(ctx, p); err != nil {
				logger.ErrorWithErr(ctx, "Exchange close failed", err,
					"cycle", o.cycle, "id", p.ID, "symbol", p.Symbol)
			}
		}
		o.posMgr.Close(ctx, p.ID, types.CloseManual, o.feed.Price(p.Symbol))
	}
}

func (o *Orchestrator) executeOpen(ctx context.Context, d types.Decision, verdict types.RiskVerdict) {
	if d.Symbol == "" {
		logger.Warn(ctx, "Decision missing symbol, aborting", "cycle", o.cycle, "action", d.Action)
		return
	}
	price := o.feed.Price(d.Symbol)
	if price <= 0 {
		logger.Warn(ctx, "No price for symbol, aborting",
			"cycle", o.cycle, "symbol", d.Symbol, "action", d.Action)
		return
	}

	side := types.Long
	if d.Action == types.ActionSell {
		side = types.Short
	}
	atr := math.NaN()
	if snap, ok := o.feed.Snapshot()[d.Symbol]; ok && snap.ATR != nil {
		atr = *snap.ATR
	}
	stop := o.riskMgr.StopLoss(price, side, atr, atrStopMult)
	target := o.riskMgr.TakeProfit(price, side, stop, rewardRiskRatio)

	if o.ex != nil {
		err := o.ex.Open(ctx, exchange.Order{
			Symbol:   d.Symbol,
			Side:     side,
			Amount:   verdict.AdjustedSize,
			Leverage: verdict.AdjustedLeverage,
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "Exchange open failed, abandoning trade", err,
				"cycle", o.cycle, "symbol", d.Symbol, "side", side)
			return
		}
	}

	_, err := o.posMgr.Open(ctx, position.OpenParams{
		Symbol:     d.Symbol,
		Side:       side,
		EntryPrice: price,
		Size:       verdict.AdjustedSize,
		Leverage:   verdict.AdjustedLeverage,
		StopLoss:   &stop,
		TakeProfit: &target,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to register position", err, "cycle", o.cycle, "symbol", d.Symbol)
	}
}

// monitor recomputes effective equity, feeds the survival state machine
// and persists orchestrator state periodically.
func (o *Orchestrator) monitor(ctx context.Context) {
	equity := o.cfg.InitialBalance + o.posMgr.TotalPnL()
	o.vitals.UpdateVitalSigns(ctx, equity)

	metrics.Equity.Set(equity)
	metrics.OpenPositions.Set(float64(o.posMgr.Count()))
	metrics.SetSurvivalState(o.vitals.State())

	if o.journal != nil {
		err := o.journal.RecordEquity(journal.EquityMark{
			Time:          time.Now().UTC(),
			Balance:       o.cfg.InitialBalance,
			Equity:        equity,
			UnrealizedPnL: o.posMgr.TotalPnL(),
			OpenPositions: o.posMgr.Count(),
		})
		if err != nil {
			logger.Warn(ctx, "Failed to journal equity mark", "cycle", o.cycle, "error", err)
		}
	}

	if o.cycle%persistEvery == 0 {
		o.persistState(ctx)
	}
}

func (o *Orchestrator) portfolio() types.PortfolioSnapshot {
	return types.PortfolioSnapshot{
		Balance:       o.vitals.CurrentBalance(),
		TotalExposure: o.posMgr.TotalExposure(),
		PositionCount: o.posMgr.Count(),
		Positions:     o.posMgr.Live(),
	}
}

func (o *Orchestrator) persistState(ctx context.Context) {
	st := store.AgentState{
		CycleCount:     o.cycle,
		SurvivalState:  o.vitals.State(),
		InitialBalance: o.cfg.InitialBalance,
		CurrentBalance: o.vitals.CurrentBalance(),
		PnL:            o.vitals.PnL(),
		PositionCount:  o.posMgr.Count(),
	}
	if err := o.store.SaveState(ctx, st); err != nil {
		logger.Warn(ctx, "Failed to persist agent state", "cycle", o.cycle, "error", err)
	}
}

// warmStart restores persisted positions, cycle count and survival
// state after a crash or restart. Missing snapshots are a clean boot,
// not an error.
func (o *Orchestrator) warmStart(ctx context.Context) {
	o.posMgr.WarmStart(ctx)
	if st, ok := o.store.LoadState(ctx); ok {
		o.cycle = st.CycleCount
		o.vitals.Restore(st.SurvivalState, st.CurrentBalance)
		logger.Info(ctx, "Resumed agent state",
			"cycle", st.CycleCount, "survival_state", o.vitals.State(), "saved_at", st.SavedAt)
	}
}

// shutdown closes all positions best-effort, persists final state and
// stops the feed. Runs exactly once, after the loop exits.
func (o *Orchestrator) shutdown(ctx context.Context) {
	o.criticalMu.Lock()
	reason := types.CloseShutdown
	if o.critical {
		reason = types.CloseSurvival
	}
	o.criticalMu.Unlock()

	logger.Info(ctx, "Shutting down", "cycle", o.cycle, "reason", reason, "positions", o.posMgr.Count())
	o.posMgr.CloseAll(ctx, reason)
	o.persistState(ctx)
	o.posMgr.Stop()
	o.feed.Stop()
	o.shutdownSub.Unsubscribe()
	logger.Info(ctx, "Agent stopped", "cycle", o.cycle)
}
