// Package risk implements admission control and position sizing. The
// manager holds configuration only; every verdict is a pure function of
// the proposed decision, the portfolio snapshot and the survival state.
package risk

import (
	"context"
	"fmt"
	"math"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

// Limits is the static risk configuration.
type Limits struct {
	MaxLeverage        int
	MaxPositions       int
	MinConfidence      float64
	DefaultRiskPercent float64
	MaxExposurePercent float64
	MaxPerAssetPercent float64
}

// multipliers scale the limits per survival state.
type multipliers struct {
	risk       float64
	leverage   float64
	positions  float64
	confidence float64
}

var stateMultipliers = map[types.SurvivalState]multipliers{
	types.StateGrowth:    {risk: 1.5, leverage: 1.0, positions: 1.5, confidence: 0.8},
	types.StateSurvival:  {risk: 1.0, leverage: 1.0, positions: 1.0, confidence: 1.0},
	types.StateDefensive: {risk: 0.5, leverage: 0.5, positions: 0.5, confidence: 1.3},
	types.StateRecovery:  {risk: 0.7, leverage: 0.7, positions: 0.7, confidence: 1.2},
	// Confidence 9.9 is unreachable: nothing opens in CRITICAL.
	types.StateCritical: {risk: 0, leverage: 0, positions: 0, confidence: 9.9},
}

type Manager struct {
	limits Limits
}

func New(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// CanOpenPosition gates a proposed BUY/SELL. Checks run in a fixed order
// and the first failure short-circuits. CLOSE decisions always pass.
func (m *Manager) CanOpenPosition(ctx context.Context, d types.Decision, portfolio types.PortfolioSnapshot, state types.SurvivalState) types.RiskVerdict {
	if d.Action == types.ActionClose {
		return types.RiskVerdict{Allowed: true, Reason: "close always allowed"}
	}

	mult, ok := stateMultipliers[state]
	if !ok {
		mult = stateMultipliers[types.StateSurvival]
	}

	if state == types.StateCritical {
		return m.deny(ctx, d, "survival state CRITICAL: no new positions")
	}

	minConf := m.limits.MinConfidence * mult.confidence
	if d.Confidence < minConf {
		return m.deny(ctx, d, fmt.Sprintf("confidence %.2f below required %.2f", d.Confidence, minConf))
	}

	maxPositions := int(math.Floor(float64(m.limits.MaxPositions) * mult.positions))
	if portfolio.PositionCount >= maxPositions {
		return m.deny(ctx, d, fmt.Sprintf("position count %d at limit %d", portfolio.PositionCount, maxPositions))
	}

	maxLev := int(math.Floor(float64(m.limits.MaxLeverage) * mult.leverage))
	if maxLev < 1 {
		maxLev = 1
	}
	adjLeverage := d.Leverage
	if adjLeverage < 1 {
		adjLeverage = 1
	}
	if adjLeverage > maxLev {
		adjLeverage = maxLev
	}

	adjSize := portfolio.Balance * (m.limits.DefaultRiskPercent * mult.risk) / 100.0

	newExposure := adjSize * float64(adjLeverage)
	maxExposure := portfolio.Balance * m.limits.MaxExposurePercent / 100.0
	if portfolio.TotalExposure+newExposure > maxExposure {
		return m.deny(ctx, d, fmt.Sprintf("total exposure %.2f would exceed limit %.2f",
			portfolio.TotalExposure+newExposure, maxExposure))
	}

	assetExposure := 0.0
	for _, p := range portfolio.Positions {
		if p.Symbol == d.Symbol {
			assetExposure += p.Exposure()
		}
	}
	maxAsset := portfolio.Balance * m.limits.MaxPerAssetPercent / 100.0
	if assetExposure+newExposure > maxAsset {
		return m.deny(ctx, d, fmt.Sprintf("%s exposure %.2f would exceed per-asset limit %.2f",
			d.Symbol, assetExposure+newExposure, maxAsset))
	}

	return types.RiskVerdict{
		Allowed:          true,
		Reason:           "within limits",
		AdjustedLeverage: adjLeverage,
		AdjustedSize:     adjSize,
	}
}

func (m *Manager) deny(ctx context.Context, d types.Decision, reason string) types.RiskVerdict {
	logger.Warn(ctx, "Trade blocked by risk policy",
		"event", "TRADE_BLOCKED",
		"symbol", d.Symbol,
		"action", d.Action,
		"confidence", d.Confidence,
		"reason", reason,
	)
	return types.RiskVerdict{Allowed: false, Reason: reason}
}

// CalculatePositionSize returns the notional to deploy for a given
// risk percentage. A positive stopDistancePercent scales the size so the
// loss at the stop equals the risk amount.
func (m *Manager) CalculatePositionSize(balance, riskPercent, stopDistancePercent float64) float64 {
	riskAmount := balance * riskPercent / 100.0
	if stopDistancePercent > 0 {
		return riskAmount / stopDistancePercent
	}
	return riskAmount
}

// StopLoss places the stop atrMult ATRs away from entry, signed by side.
// Without a usable ATR it falls back to a fixed 3% distance.
func (m *Manager) StopLoss(entry float64, side types.Side, atr, atrMult float64) float64 {
	dist := atr * atrMult
	if atr <= 0 || math.IsNaN(atr) {
		dist = entry * 0.03
	}
	if side == types.Short {
		return entry + dist
	}
	return entry - dist
}

// TakeProfit mirrors the stop distance rrRatio times past entry.
func (m *Manager) TakeProfit(entry float64, side types.Side, stopLoss, rrRatio float64) float64 {
	dist := math.Abs(entry-stopLoss) * rrRatio
	if side == types.Short {
		return entry - dist
	}
	return entry + dist
}
