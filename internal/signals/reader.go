// Package signals handles externally discovered alpha signals: a file
// of timestamped records consumed by the orchestrator, and an optional
// scraper that feeds the file from configured news sources.
package signals

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

// Reader consumes the signal file, returning only records inside the
// recency window. Errors reading the source are treated as "no signals".
type Reader struct {
	path   string
	window time.Duration
}

func NewReader(path string, window time.Duration) *Reader {
	return &Reader{path: path, window: window}
}

// Recent returns signals discovered within the window before now.
// Records may appear in any order on disk.
func (r *Reader) Recent(ctx context.Context, now time.Time) []types.Signal {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn(ctx, "Failed to read signals file", "path", r.path, "error", err)
		}
		return nil
	}

	var all []types.Signal
	if err := json.Unmarshal(b, &all); err != nil {
		logger.Warn(ctx, "Corrupt signals file, treating as empty", "path", r.path, "error", err)
		return nil
	}

	cutoff := now.Add(-r.window)
	var recent []types.Signal
	for _, s := range all {
		if s.DiscoveredAt.After(cutoff) && !s.DiscoveredAt.After(now) {
			recent = append(recent, s)
		}
	}
	return recent
}
