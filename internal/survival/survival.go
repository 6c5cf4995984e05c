// Package survival classifies the agent's capital health from the ratio
// of current to initial balance. Transitions are debounced: a candidate
// state must be observed on several consecutive updates before it
// commits. CRITICAL bypasses the debounce and commits immediately.
package survival

import (
	"context"
	"sync"
	"time"

	"leverage-agent/internal/bus"
	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

const (
	historyCap     = 100
	historyCompact = 50

	growthRatio    = 1.20
	criticalRatio  = 0.50
	defensiveRatio = 0.85
	recoveryFloor  = 0.70
)

// DefaultHysteresis is the number of consecutive observations required
// before a non-critical transition commits.
const DefaultHysteresis = 3

type Manager struct {
	mu sync.Mutex

	bus            *bus.Bus
	initialBalance float64
	currentBalance float64
	hysteresis     int

	state        types.SurvivalState
	pendingState types.SurvivalState
	pendingCount int
	history      []types.SurvivalTransition
}

func New(b *bus.Bus, initialBalance float64, hysteresis int) *Manager {
	if hysteresis <= 0 {
		hysteresis = DefaultHysteresis
	}
	return &Manager{
		bus:            b,
		initialBalance: initialBalance,
		currentBalance: initialBalance,
		hysteresis:     hysteresis,
		state:          types.StateSurvival,
	}
}

// Restore rewinds the committed state and balance from a snapshot taken
// before a restart, so the risk multipliers in force when the process
// died apply from the first cycle. CRITICAL is never restored: it is a
// terminal signal for the run that produced it, and a fresh run
// re-derives capital health from live equity. Unknown states are
// ignored.
func (m *Manager) Restore(state types.SurvivalState, currentBalance float64) {
	switch state {
	case types.StateGrowth, types.StateSurvival, types.StateRecovery, types.StateDefensive:
	default:
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	if currentBalance > 0 {
		m.currentBalance = currentBalance
	}
	m.pendingState = ""
	m.pendingCount = 0
}

// UpdateVitalSigns feeds one equity observation into the state machine.
func (m *Manager) UpdateVitalSigns(ctx context.Context, currentBalance float64) {
	m.mu.Lock()
	m.currentBalance = currentBalance
	ratio := m.healthRatioLocked()
	candidate := m.deriveStateLocked(ratio)

	if candidate == m.state {
		m.pendingState = ""
		m.pendingCount = 0
		m.mu.Unlock()
		return
	}

	// Capital-critical is a terminal control signal, not a trend to debounce.
	if candidate == types.StateCritical {
		m.commitLocked(ctx, candidate, ratio)
		return // commitLocked unlocks
	}

	if candidate != m.pendingState {
		m.pendingState = candidate
		m.pendingCount = 1
	} else {
		m.pendingCount++
	}

	if m.pendingCount >= m.hysteresis {
		m.commitLocked(ctx, candidate, ratio)
		return
	}
	logger.Debug(ctx, "Survival transition pending",
		"candidate", m.pendingState, "count", m.pendingCount, "needed", m.hysteresis, "ratio", ratio)
	m.mu.Unlock()
}

// deriveStateLocked applies the classification rule literally; the
// (0.50, 0.85] band and the near-par band both read the current
// committed state, which makes the result call-order dependent near the
// DEFENSIVE/RECOVERY boundary.
func (m *Manager) deriveStateLocked(ratio float64) types.SurvivalState {
	switch {
	case ratio >= growthRatio:
		return types.StateGrowth
	case ratio <= criticalRatio:
		return types.StateCritical
	case ratio <= defensiveRatio:
		if m.state == types.StateDefensive && ratio > recoveryFloor {
			return types.StateRecovery
		}
		return types.StateDefensive
	default:
		if m.state == types.StateRecovery && ratio < 1.0 {
			return types.StateRecovery
		}
		return types.StateSurvival
	}
}

// commitLocked finalizes a transition. Called with m.mu held; unlocks
// before publishing so subscribers can read the manager.
func (m *Manager) commitLocked(ctx context.Context, next types.SurvivalState, ratio float64) {
	prev := m.state
	m.state = next
	m.pendingState = ""
	m.pendingCount = 0

	transition := types.SurvivalTransition{
		From:       prev,
		To:         next,
		Ratio:      ratio,
		PnLPercent: (m.currentBalance - m.initialBalance) / m.initialBalance * 100.0,
		At:         time.Now().UTC(),
	}
	m.history = append(m.history, transition)
	if len(m.history) > historyCap {
		m.history = append([]types.SurvivalTransition(nil), m.history[len(m.history)-historyCompact:]...)
	}
	m.mu.Unlock()

	logger.Info(ctx, "Survival state changed",
		"event", "SURVIVAL_TRANSITION",
		"from", prev, "to", next,
		"ratio", ratio, "pnl_percent", transition.PnLPercent,
	)
	m.bus.Publish(ctx, bus.TopicSurvivalTransition, transition)
	if next == types.StateCritical {
		logger.Error(ctx, "Capital critical, requesting shutdown", "ratio", ratio)
		m.bus.Publish(ctx, bus.TopicSurvivalShutdown, transition)
	}
}

func (m *Manager) healthRatioLocked() float64 {
	if m.initialBalance == 0 {
		return 0
	}
	return m.currentBalance / m.initialBalance
}

// State returns the committed survival state.
func (m *Manager) State() types.SurvivalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HealthRatio is current balance over initial balance.
func (m *Manager) HealthRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthRatioLocked()
}

// PnL is current balance minus initial balance.
func (m *Manager) PnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBalance - m.initialBalance
}

// CurrentBalance returns the last observed balance.
func (m *Manager) CurrentBalance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBalance
}

// History returns a copy of the retained transition log.
func (m *Manager) History() []types.SurvivalTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SurvivalTransition, len(m.history))
	copy(out, m.history)
	return out
}
