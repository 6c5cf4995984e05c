// Package oracle consumes the language-model decision oracle through its
// input/output contract. Providers are interchangeable behind Decider;
// all response parsing funnels through one defensive boundary that the
// orchestrator maps to HOLD on any failure.
package oracle

import (
	"context"

	"leverage-agent/internal/types"
)

// TradingContext is the state object the oracle sees each cycle.
type TradingContext struct {
	MarketData    map[string]types.IndicatorSnapshot `json:"marketData"`
	Signals       []types.Signal                     `json:"signals"`
	Positions     []types.Position                   `json:"positions"`
	SurvivalState types.SurvivalState                `json:"survivalState"`
	Balance       float64                            `json:"balance"`
	PnL           float64                            `json:"pnl"`
}

// Decider produces one trading decision from the cycle context.
type Decider interface {
	Decide(ctx context.Context, tc TradingContext) (types.Decision, error)
}

// Config configures an HTTP decider.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32
	System      string
}

const defaultSystem = "You are a disciplined leveraged-futures trader managing a finite capital base. " +
	"Respond ONLY with compact JSON: {\"action\":\"BUY|SELL|CLOSE|HOLD\",\"symbol\":\"...\"," +
	"\"confidence\":0.0-1.0,\"leverage\":1-20,\"reasoning\":\"...\",\"urgency\":\"LOW|MEDIUM|HIGH\"}."

func (c Config) system() string {
	if c.System != "" {
		return c.System
	}
	return defaultSystem
}

// Noop is the fallback decider used when no provider is configured.
// It always holds.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Decide(ctx context.Context, tc TradingContext) (types.Decision, error) {
	return types.Decision{
		Action:     types.ActionHold,
		Confidence: 0,
		Reasoning:  "noop decider",
		Urgency:    types.UrgencyLow,
	}, nil
}
