// Package store persists the agent's durable snapshots: the live
// position set and the orchestrator state. Both files are best-effort
// caches for warm restart; a missing or corrupt file loads as empty
// state with a logged warning.
package store

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

// AgentState is the orchestrator snapshot rewritten every few cycles
// and on shutdown.
type AgentState struct {
	CycleCount     int                 `json:"cycle_count"`
	SurvivalState  types.SurvivalState `json:"survival_state"`
	InitialBalance float64             `json:"initial_balance"`
	CurrentBalance float64             `json:"current_balance"`
	PnL            float64             `json:"pnl"`
	PositionCount  int                 `json:"position_count"`
	SavedAt        time.Time           `json:"saved_at"`
}

type Store struct {
	positionsPath string
	statePath     string
}

func New(positionsPath, statePath string) *Store {
	return &Store{positionsPath: positionsPath, statePath: statePath}
}

// SavePositions rewrites the live position set wholesale.
func (s *Store) SavePositions(ctx context.Context, positions []types.Position) error {
	b, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.positionsPath, b, 0o600)
}

// LoadPositions returns the persisted live set, or an empty slice if the
// snapshot is missing or unreadable.
func (s *Store) LoadPositions(ctx context.Context) []types.Position {
	b, err := os.ReadFile(s.positionsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "Failed to read positions snapshot", "path", s.positionsPath, "error", err)
		}
		return nil
	}
	var positions []types.Position
	if err := json.Unmarshal(b, &positions); err != nil {
		logger.Warn(ctx, "Corrupt positions snapshot, starting empty", "path", s.positionsPath, "error", err)
		return nil
	}
	return positions
}

// SaveState rewrites the orchestrator state snapshot.
func (s *Store) SaveState(ctx context.Context, st AgentState) error {
	st.SavedAt = time.Now().UTC()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.statePath, b, 0o600)
}

// LoadState returns the persisted orchestrator state and whether one was
// found.
func (s *Store) LoadState(ctx context.Context) (AgentState, bool) {
	b, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "Failed to read state snapshot", "path", s.statePath, "error", err)
		}
		return AgentState{}, false
	}
	var st AgentState
	if err := json.Unmarshal(b, &st); err != nil {
		logger.Warn(ctx, "Corrupt state snapshot, starting fresh", "path", s.statePath, "error", err)
		return AgentState{}, false
	}
	return st, true
}
