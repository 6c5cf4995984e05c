package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

const readTimeout = 60 * time.Second

// tickerMessage is one combined-stream frame from the venue.
type tickerMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Last   string `json:"c"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Time   int64  `json:"E"`
	} `json:"data"`
}

func (f *Feed) streamNames() []string {
	names := make([]string, 0, len(f.cfg.Symbols))
	for _, sym := range f.cfg.Symbols {
		names = append(names, strings.ToLower(sym)+"@ticker")
	}
	return names
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	url := f.cfg.StreamURL + "?streams=" + strings.Join(f.streamNames(), "/")
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", f.cfg.StreamURL, err)
	}
	return conn, nil
}

// streamLoop reads ticks until the context is cancelled. On a dropped
// connection it reconnects with exponential backoff; once the attempt
// budget is exhausted it degrades permanently to polling.
func (f *Feed) streamLoop(ctx context.Context, conn *websocket.Conn) {
	defer f.wg.Done()

	// Closing the connection on cancel unblocks the reader. Each
	// connection gets its own watcher holding its own conn.
	watch := func(c *websocket.Conn) {
		go func() {
			<-ctx.Done()
			c.Close()
		}()
	}
	watch(conn)

	attempts := 0
	delay := f.cfg.ReconnectBase
	for {
		if conn != nil {
			err := f.readPump(ctx, conn)
			conn.Close()
			conn = nil
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "Stream disconnected", "error", err)
		}

		attempts++
		if attempts > f.cfg.MaxReconnectAttempts {
			logger.Error(ctx, "Reconnect attempts exhausted, switching to polling permanently",
				"attempts", attempts-1)
			f.wg.Add(1)
			go f.pollLoop(ctx)
			return
		}

		logger.Info(ctx, "Reconnecting stream", "attempt", attempts, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.cfg.ReconnectMax {
			delay = f.cfg.ReconnectMax
		}

		next, err := f.dial(ctx)
		if err != nil {
			logger.Warn(ctx, "Reconnect dial failed", "error", err, "attempt", attempts)
			continue
		}
		conn = next
		watch(conn)
		logger.Info(ctx, "Market stream reconnected", "attempt", attempts)
		attempts = 0
		delay = f.cfg.ReconnectBase
	}
}

// readPump processes inbound frames until the connection errors.
// Everything triggered from a tick is bounded and non-blocking aside
// from the protective-exit close, which carries its own timeout.
func (f *Feed) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.Symbol == "" {
			continue
		}
		f.Ingest(ctx, types.Tick{
			Symbol: msg.Data.Symbol,
			Price:  parseFloat(msg.Data.Last),
			High:   parseFloat(msg.Data.High),
			Low:    parseFloat(msg.Data.Low),
			Ts:     time.UnixMilli(msg.Data.Time),
		})
	}
}

// restTicker is the REST snapshot shape used by the polling fallback.
type restTicker struct {
	Symbol string `json:"symbol"`
	Last   string `json:"lastPrice"`
	High   string `json:"highPrice"`
	Low    string `json:"lowPrice"`
}

// pollLoop fetches a REST snapshot per symbol on a fixed interval. Once
// entered it runs for the remainder of the process lifetime.
func (f *Feed) pollLoop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	f.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce(ctx)
		}
	}
}

func (f *Feed) pollOnce(ctx context.Context) {
	client := &http.Client{Timeout: f.cfg.ConnectTimeout}
	for _, sym := range f.cfg.Symbols {
		t, err := f.fetchTicker(ctx, client, sym)
		if err != nil {
			logger.Warn(ctx, "Ticker poll failed", "symbol", sym, "error", err)
			continue
		}
		f.Ingest(ctx, t)
	}
}

func (f *Feed) fetchTicker(ctx context.Context, client *http.Client, symbol string) (types.Tick, error) {
	url := fmt.Sprintf("%s?symbol=%s", f.cfg.RestURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Tick{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.Tick{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Tick{}, fmt.Errorf("ticker http %d: %s", resp.StatusCode, string(body))
	}

	var tk restTicker
	if err := json.NewDecoder(resp.Body).Decode(&tk); err != nil {
		return types.Tick{}, err
	}
	return types.Tick{
		Symbol: symbol,
		Price:  parseFloat(tk.Last),
		High:   parseFloat(tk.High),
		Low:    parseFloat(tk.Low),
		Ts:     time.Now().UTC(),
	}, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
