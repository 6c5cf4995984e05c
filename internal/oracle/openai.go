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
	"time"

	"leverage-agent/internal/trace"
	"leverage-agent/internal/types"
)

// OpenAIDecider calls the OpenAI chat-completions API.
type OpenAIDecider struct {
	cfg      Config
	endpoint string
	client   *http.Client
}

func NewOpenAIDecider(cfg Config, timeout time.Duration) *OpenAIDecider {
	endpoint := "https://api.openai.com/v1/chat/completions"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &OpenAIDecider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *OpenAIDecider) Decide(ctx context.Context, tc TradingContext) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.Decision{}, errors.New("OPENAI_API_KEY missing")
	}

	stateB, _ := json.Marshal(tc)
	reqBody := map[string]any{
		"model": d.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": d.cfg.system()},
			{"role": "user", "content": "State:" + string(stateB) + "\n\nRespond ONLY with the JSON decision."},
		},
		"max_tokens":  d.cfg.MaxTokens,
		"temperature": d.cfg.Temperature,
	}

	bb, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(bb))
	if err != nil {
		return types.Decision{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.Decision{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return types.Decision{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.Decision{}, err
	}
	if len(parsed.Choices) == 0 {
		return types.Decision{}, errors.New("openai response had no choices")
	}
	return ParseDecision(parsed.Choices[0].Message.Content)
}
