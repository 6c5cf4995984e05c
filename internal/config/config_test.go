package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
mode: DRY_RUN
symbols: [BTCUSDT]
initial_balance: 1000
risk:
  max_leverage: 20
  min_confidence: 0.6
  default_risk_percent: 2
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	c, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "sim", c.Exchange)
	assert.Equal(t, 5, c.Risk.MaxPositions)
	assert.Equal(t, 300.0, c.Risk.MaxExposurePercent)
	assert.Equal(t, 150.0, c.Risk.MaxPerAssetPercent)
	assert.Equal(t, 3, c.Survival.HysteresisThreshold)
	assert.Equal(t, 14, c.Feed.RSIPeriod)
	assert.Equal(t, time.Minute, c.BaseInterval())
	assert.Equal(t, 30*time.Minute, c.SignalWindow())
	assert.Equal(t, "data/signals.json", c.Agent.SignalsFile)
	assert.Equal(t, "data/journal.db", c.Store.JournalFile)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", `
mode: PAPER
symbols: [BTCUSDT]
initial_balance: 1000
risk: {max_leverage: 20, min_confidence: 0.6, default_risk_percent: 2}
`},
		{"no symbols", `
mode: DRY_RUN
symbols: []
initial_balance: 1000
risk: {max_leverage: 20, min_confidence: 0.6, default_risk_percent: 2}
`},
		{"zero balance", `
mode: DRY_RUN
symbols: [BTCUSDT]
initial_balance: 0
risk: {max_leverage: 20, min_confidence: 0.6, default_risk_percent: 2}
`},
		{"leverage below one", `
mode: DRY_RUN
symbols: [BTCUSDT]
initial_balance: 1000
risk: {max_leverage: 0, min_confidence: 0.6, default_risk_percent: 2}
`},
		{"confidence above one", `
mode: DRY_RUN
symbols: [BTCUSDT]
initial_balance: 1000
risk: {max_leverage: 20, min_confidence: 1.5, default_risk_percent: 2}
`},
		{"risk percent out of range", `
mode: DRY_RUN
symbols: [BTCUSDT]
initial_balance: 1000
risk: {max_leverage: 20, min_confidence: 0.6, default_risk_percent: 150}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	t.Parallel()
	_, err := Load(writeConfig(t, "mode: [unterminated"))
	assert.Error(t, err)
}
