package signals

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leverage-agent/internal/types"
)

func TestMergeDeduplicatesByRawText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "signals.json")
	s := &Scraper{path: path}
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.merge(ctx, []types.Signal{
		{DiscoveredAt: now.Add(-time.Minute), RawText: "BTC breaks out", Source: "CoinDesk"},
	}))
	require.NoError(t, s.merge(ctx, []types.Signal{
		{DiscoveredAt: now, RawText: "BTC breaks out", Source: "CoinTelegraph"},
		{DiscoveredAt: now, RawText: "ETH merge anniversary", Source: "CoinDesk"},
	}))

	got := NewReader(path, 24*time.Hour).Recent(ctx, now)
	require.Len(t, got, 2)
	// The earlier copy of the duplicate headline wins.
	for _, sig := range got {
		if sig.RawText == "BTC breaks out" {
			assert.Equal(t, "CoinDesk", sig.Source)
		}
	}
}

func TestMergeSortsNewestFirstAndCaps(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "signals.json")
	s := &Scraper{path: path}
	ctx := context.Background()
	now := time.Now().UTC()

	var fresh []types.Signal
	for i := 0; i < fileCap+20; i++ {
		fresh = append(fresh, types.Signal{
			DiscoveredAt: now.Add(-time.Duration(i) * time.Minute),
			RawText:      fmt.Sprintf("headline %d", i),
		})
	}
	require.NoError(t, s.merge(ctx, fresh))

	got := NewReader(path, 24*time.Hour).Recent(ctx, now)
	require.Len(t, got, fileCap)
	assert.Equal(t, "headline 0", got[0].RawText)
	assert.Equal(t, fmt.Sprintf("headline %d", fileCap-1), got[len(got)-1].RawText)
}

func TestCompactDropsEmptyParts(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, compact("a", "", "b"))
	assert.Nil(t, compact("", ""))
}
