package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leverage-agent/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "positions.json"), filepath.Join(dir, "state.json"))
}

func TestPositionsRoundTrip(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	stop := 95.0
	in := []types.Position{
		{ID: "a", Symbol: "BTCUSDT", Side: types.Long, EntryPrice: 100, Size: 50, Leverage: 5, StopLoss: &stop, OpenedAt: time.Now().UTC()},
		{ID: "b", Symbol: "ETHUSDT", Side: types.Short, EntryPrice: 2000, Size: 25, Leverage: 3, OpenedAt: time.Now().UTC()},
	}
	require.NoError(t, s.SavePositions(ctx, in))

	out := s.LoadPositions(ctx)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	require.NotNil(t, out[0].StopLoss)
	assert.Equal(t, 95.0, *out[0].StopLoss)
	assert.Equal(t, types.Short, out[1].Side)
}

func TestLoadPositionsMissingFile(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	assert.Empty(t, s.LoadPositions(context.Background()))
}

func TestLoadPositionsCorruptFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))
	s := New(path, filepath.Join(dir, "state.json"))
	assert.Empty(t, s.LoadPositions(context.Background()))
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	in := AgentState{
		CycleCount:     42,
		SurvivalState:  types.StateDefensive,
		InitialBalance: 1000,
		CurrentBalance: 800,
		PnL:            -200,
		PositionCount:  2,
	}
	require.NoError(t, s.SaveState(ctx, in))

	out, ok := s.LoadState(ctx)
	require.True(t, ok)
	assert.Equal(t, 42, out.CycleCount)
	assert.Equal(t, types.StateDefensive, out.SurvivalState)
	assert.InDelta(t, -200, out.PnL, 1e-9)
	assert.False(t, out.SavedAt.IsZero())
}

func TestLoadStateMissingOrCorrupt(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	_, ok := s.LoadState(context.Background())
	assert.False(t, ok)

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte("nope"), 0o600))
	s2 := New(filepath.Join(dir, "positions.json"), statePath)
	_, ok = s2.LoadState(context.Background())
	assert.False(t, ok)
}

func TestWriteFileAtomicCreatesParentDirs(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "deep", "file.json")
	require.NoError(t, WriteFileAtomic(path, []byte("{}"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestWriteFileAtomicReplacesExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))
}
