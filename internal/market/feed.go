// Package market maintains the live per-symbol price cache and derived
// technical indicators, fed by a streaming connection with a polling
// fallback. The feed is the single writer of the indicator snapshot
// map; every write replaces a symbol's snapshot wholesale so readers
// never observe a partial update.
package market

import (
	"context"
	"math"
	"sync"
	"time"

	"leverage-agent/internal/bus"
	"leverage-agent/internal/logger"
	"leverage-agent/internal/ta"
	"leverage-agent/internal/types"
)

// historyCap bounds the per-symbol sample history.
const historyCap = 200

type Config struct {
	Symbols []string

	StreamURL string // websocket combined-stream endpoint
	RestURL   string // REST ticker endpoint for the polling fallback

	PollInterval         time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration

	RSIPeriod int
	ATRPeriod int
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = 14
	}
}

// series is the bounded history for one symbol.
type series struct {
	closes []float64
	highs  []float64
	lows   []float64
}

func (s *series) push(t types.Tick) {
	s.closes = append(s.closes, t.Price)
	s.highs = append(s.highs, t.High)
	s.lows = append(s.lows, t.Low)
	if len(s.closes) > historyCap {
		s.closes = s.closes[1:]
		s.highs = s.highs[1:]
		s.lows = s.lows[1:]
	}
}

type Feed struct {
	cfg Config
	bus *bus.Bus

	mu        sync.RWMutex
	history   map[string]*series
	snapshots map[string]types.IndicatorSnapshot

	runMu   sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewFeed(b *bus.Bus, cfg Config) *Feed {
	cfg.applyDefaults()
	return &Feed{
		cfg:       cfg,
		bus:       b,
		history:   make(map[string]*series),
		snapshots: make(map[string]types.IndicatorSnapshot),
	}
}

// Start opens the streaming connection; if it cannot be established
// within the connect timeout the feed falls back to fixed-interval
// polling of the REST endpoint.
func (f *Feed) Start(ctx context.Context) {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.started {
		return
	}
	f.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	conn, err := f.dial(ctx)
	if err != nil {
		logger.Warn(ctx, "Stream connection failed, falling back to polling",
			"error", err, "interval", f.cfg.PollInterval)
		f.wg.Add(1)
		go f.pollLoop(runCtx)
		return
	}

	logger.Info(ctx, "Market stream connected", "symbols", f.cfg.Symbols)
	f.wg.Add(1)
	go f.streamLoop(runCtx, conn)
}

// Stop tears down the connection or poll timer. Idempotent.
func (f *Feed) Stop() {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if !f.started {
		return
	}
	f.started = false
	f.cancel()
	f.wg.Wait()
}

// Snapshot returns the full indicator snapshot map, one entry per
// symbol observed so far. Values are copies.
func (f *Feed) Snapshot() map[string]types.IndicatorSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]types.IndicatorSnapshot, len(f.snapshots))
	for sym, snap := range f.snapshots {
		out[sym] = snap
	}
	return out
}

// Price returns the last known price for symbol, or 0 if never observed.
func (f *Feed) Price(symbol string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshots[symbol].LastPrice
}

// Ingest consumes one tick from a transport or a replay. It appends the
// sample to the symbol's bounded history, recomputes indicators, replaces
// the snapshot and publishes a price-update event.
func (f *Feed) Ingest(ctx context.Context, t types.Tick) {
	if t.Price <= 0 {
		return
	}
	if t.High <= 0 {
		t.High = t.Price
	}
	if t.Low <= 0 {
		t.Low = t.Price
	}

	f.mu.Lock()
	s := f.history[t.Symbol]
	if s == nil {
		s = &series{}
		f.history[t.Symbol] = s
	}
	s.push(t)

	snap := types.IndicatorSnapshot{
		Symbol:    t.Symbol,
		LastPrice: t.Price,
		RSI:       known(ta.RSI(s.closes, f.cfg.RSIPeriod)),
		EMA20:     known(ta.EMA(s.closes, 20)),
		EMA50:     known(ta.EMA(s.closes, 50)),
		ATR:       known(ta.ATR(s.highs, s.lows, s.closes, f.cfg.ATRPeriod)),
		UpdatedAt: t.Ts,
	}
	f.snapshots[t.Symbol] = snap
	f.mu.Unlock()

	f.bus.Publish(ctx, bus.TopicPriceUpdate, types.PriceUpdate{
		Symbol:     t.Symbol,
		Price:      t.Price,
		Indicators: snap,
	})
}

// known converts a NaN indicator value into a nil pointer so "not yet
// computable" is never confused with zero.
func known(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
