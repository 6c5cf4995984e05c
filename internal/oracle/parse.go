package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"leverage-agent/internal/types"
)

// ParseDecision locates the JSON object in the oracle's raw text output
// and validates it into a Decision. Wrapping prose and markdown fences
// are stripped before parsing. On any failure the error is returned and
// the caller substitutes HOLD.
func ParseDecision(text string) (types.Decision, error) {
	t := strings.TrimSpace(text)
	t = stripFences(t)

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return types.Decision{}, fmt.Errorf("no JSON object in oracle output")
	}

	var d types.Decision
	if err := json.Unmarshal([]byte(t[start:end+1]), &d); err != nil {
		return types.Decision{}, fmt.Errorf("unmarshal oracle output: %w", err)
	}
	return validate(d)
}

// Hold is the well-formed degraded decision substituted for a failed or
// malformed oracle call.
func Hold(reason string) types.Decision {
	return types.Decision{
		Action:     types.ActionHold,
		Confidence: 0,
		Reasoning:  reason,
		Urgency:    types.UrgencyLow,
	}
}

func stripFences(t string) string {
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// validate restricts the action and urgency enums and clamps confidence
// and leverage into their allowed ranges.
func validate(d types.Decision) (types.Decision, error) {
	d.Action = types.Action(strings.ToUpper(strings.TrimSpace(string(d.Action))))
	switch d.Action {
	case types.ActionBuy, types.ActionSell, types.ActionClose, types.ActionHold:
	default:
		return types.Decision{}, fmt.Errorf("unrecognized action %q", d.Action)
	}

	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}

	if d.Leverage < 1 {
		d.Leverage = 1
	}
	if d.Leverage > 20 {
		d.Leverage = 20
	}

	d.Urgency = types.Urgency(strings.ToUpper(strings.TrimSpace(string(d.Urgency))))
	switch d.Urgency {
	case types.UrgencyLow, types.UrgencyMedium, types.UrgencyHigh:
	default:
		d.Urgency = types.UrgencyMedium
	}

	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	return d, nil
}
