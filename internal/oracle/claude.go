package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"leverage-agent/internal/trace"
	"leverage-agent/internal/types"
)

// ClaudeDecider calls the Anthropic messages API.
type ClaudeDecider struct {
	cfg      Config
	endpoint string
	client   *http.Client
}

func NewClaudeDecider(cfg Config, timeout time.Duration) *ClaudeDecider {
	endpoint := "https://api.anthropic.com/v1/messages"
	// Proxy/bedrock/vertex deployments override via CLAUDE_API_ENDPOINT.
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &ClaudeDecider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *ClaudeDecider) Decide(ctx context.Context, tc TradingContext) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return types.Decision{}, errors.New("CLAUDE_API_KEY missing")
	}

	stateB, _ := json.Marshal(tc)
	reqBody := map[string]any{
		"model":      d.cfg.Model,
		"system":     d.cfg.system(),
		"max_tokens": d.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": "State:" + string(stateB) + "\n\nRespond ONLY with the JSON decision."},
		},
		"temperature": d.cfg.Temperature,
	}

	bb, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(bb))
	if err != nil {
		return types.Decision{}, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.Decision{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return types.Decision{}, fmt.Errorf("claude http %d: %s", resp.StatusCode, string(body))
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Decision{}, err
	}
	return ParseDecision(extractClaudeText(respBytes))
}

// extractClaudeText drills the messages-API response for the assistant
// text, falling back to the raw body so ParseDecision can still try.
func extractClaudeText(respBytes []byte) string {
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err == nil {
		var sb strings.Builder
		for _, c := range parsed.Content {
			if c.Type == "" || c.Type == "text" {
				sb.WriteString(c.Text)
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return string(respBytes)
}
