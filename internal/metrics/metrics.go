// Package metrics exposes the agent's prometheus collectors and, when
// configured, a /metrics HTTP listener. This listener is the only HTTP
// surface the agent owns.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_cycles_total",
		Help: "Completed orchestrator cycles.",
	})
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_decisions_total",
		Help: "Oracle decisions by action.",
	}, []string{"action"})
	RiskDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_risk_denials_total",
		Help: "Trades denied by the risk policy.",
	})
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_open_positions",
		Help: "Live position count.",
	})
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_equity",
		Help: "Effective equity (initial balance plus unrealized PnL).",
	})
	survivalState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_survival_state",
		Help: "Current survival state (1 for the active state).",
	}, []string{"state"})
)

var allStates = []types.SurvivalState{
	types.StateGrowth, types.StateSurvival, types.StateRecovery,
	types.StateDefensive, types.StateCritical,
}

// SetSurvivalState flips the state gauge family so exactly one label
// reads 1.
func SetSurvivalState(s types.SurvivalState) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1.0
		}
		survivalState.WithLabelValues(string(st)).Set(v)
	}
}

// Serve runs the /metrics listener until the context is cancelled. A
// serve failure is logged, never fatal.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info(ctx, "Metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(ctx, "Metrics listener failed", "error", err)
		}
	}()
}
