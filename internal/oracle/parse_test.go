package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leverage-agent/internal/types"
)

func TestParseDecisionPlainJSON(t *testing.T) {
	t.Parallel()
	d, err := ParseDecision(`{"action":"BUY","symbol":"btcusdt","confidence":0.8,"leverage":5,"reasoning":"breakout","urgency":"HIGH"}`)
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, 5, d.Leverage)
	assert.Equal(t, types.UrgencyHigh, d.Urgency)
}

func TestParseDecisionStripsMarkdownFences(t *testing.T) {
	t.Parallel()
	text := "```json\n{\"action\":\"SELL\",\"symbol\":\"ETHUSDT\",\"confidence\":0.7}\n```"
	d, err := ParseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, types.ActionSell, d.Action)
	assert.Equal(t, "ETHUSDT", d.Symbol)
}

func TestParseDecisionSkipsWrappingProse(t *testing.T) {
	t.Parallel()
	text := `Based on current conditions I recommend the following:
{"action":"HOLD","confidence":0.5,"reasoning":"choppy market"}
Let me know if you need more detail.`
	d, err := ParseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, "choppy market", d.Reasoning)
}

func TestParseDecisionLowercaseAction(t *testing.T) {
	t.Parallel()
	d, err := ParseDecision(`{"action":"buy","symbol":"BTCUSDT","confidence":0.9}`)
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
}

func TestParseDecisionClampsRanges(t *testing.T) {
	t.Parallel()
	d, err := ParseDecision(`{"action":"BUY","symbol":"BTCUSDT","confidence":1.7,"leverage":50}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, 20, d.Leverage)

	d, err = ParseDecision(`{"action":"BUY","symbol":"BTCUSDT","confidence":-0.3,"leverage":0}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, 1, d.Leverage)
}

func TestParseDecisionDefaultsUrgency(t *testing.T) {
	t.Parallel()
	d, err := ParseDecision(`{"action":"BUY","symbol":"BTCUSDT","confidence":0.9,"urgency":"ASAP"}`)
	require.NoError(t, err)
	assert.Equal(t, types.UrgencyMedium, d.Urgency)
}

func TestParseDecisionRejectsMalformedOutput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"prose only", "I think you should buy bitcoin today."},
		{"truncated json", `{"action":"BUY","symbol":`},
		{"unknown action", `{"action":"YOLO","confidence":0.9}`},
		{"wrong types", `{"action":"BUY","confidence":"very high"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDecision(tc.text)
			assert.Error(t, err)
		})
	}
}

func TestNoopDeciderAlwaysHolds(t *testing.T) {
	t.Parallel()
	d, err := (&Noop{}).Decide(context.Background(), TradingContext{Balance: 1000})
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestHoldDecision(t *testing.T) {
	t.Parallel()
	d := Hold("oracle timeout")
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, "oracle timeout", d.Reasoning)
	assert.Equal(t, types.UrgencyLow, d.Urgency)
}
