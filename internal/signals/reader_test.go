package signals

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leverage-agent/internal/types"
)

func writeSignals(t *testing.T, path string, sigs []types.Signal) {
	t.Helper()
	b, err := json.Marshal(sigs)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestRecentFiltersByWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "signals.json")
	writeSignals(t, path, []types.Signal{
		{DiscoveredAt: now.Add(-10 * time.Minute), Instruction: "fresh"},
		{DiscoveredAt: now.Add(-2 * time.Hour), Instruction: "stale"},
		{DiscoveredAt: now.Add(5 * time.Minute), Instruction: "future"},
		{DiscoveredAt: now.Add(-29 * time.Minute), Instruction: "edge"},
	})

	r := NewReader(path, 30*time.Minute)
	got := r.Recent(context.Background(), now)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].Instruction)
	assert.Equal(t, "edge", got[1].Instruction)
}

func TestRecentMissingFile(t *testing.T) {
	t.Parallel()
	r := NewReader(filepath.Join(t.TempDir(), "nope.json"), time.Hour)
	assert.Nil(t, r.Recent(context.Background(), time.Now()))
}

func TestRecentCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, []byte("not json {"), 0o600))
	r := NewReader(path, time.Hour)
	assert.Nil(t, r.Recent(context.Background(), time.Now()))
}

func TestRecentInclusiveOfNow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "signals.json")
	writeSignals(t, path, []types.Signal{
		{DiscoveredAt: now, Instruction: "right now"},
	})
	r := NewReader(path, time.Minute)
	assert.Len(t, r.Recent(context.Background(), now), 1)
}
