// Package position owns the authoritative set of open positions. It
// persists the live set on every mutation, marks positions to market on
// price updates, and enforces stop-loss/take-profit exits reactively as
// the price stream moves.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"leverage-agent/internal/bus"
	"leverage-agent/internal/exchange"
	"leverage-agent/internal/journal"
	"leverage-agent/internal/logger"
	"leverage-agent/internal/store"
	"leverage-agent/internal/types"
)

// closeTimeout bounds exchange close calls made from the feed goroutine
// so the stream read loop never blocks for long.
const closeTimeout = 10 * time.Second

// OpenParams describes a position to open.
type OpenParams struct {
	Symbol     string
	Side       types.Side
	EntryPrice float64
	Size       float64
	Leverage   int
	StopLoss   *float64
	TakeProfit *float64
}

type Manager struct {
	mu        sync.Mutex
	positions map[string]types.Position

	exchangeName string
	bus          *bus.Bus
	store        *store.Store
	journal      *journal.Journal // optional
	ex           exchange.Exchange

	sub *bus.Subscription
}

func NewManager(b *bus.Bus, st *store.Store, j *journal.Journal, ex exchange.Exchange, exchangeName string) *Manager {
	m := &Manager{
		positions:    make(map[string]types.Position),
		exchangeName: exchangeName,
		bus:          b,
		store:        st,
		journal:      j,
		ex:           ex,
	}
	m.sub = b.Subscribe(bus.TopicPriceUpdate, m.onPriceUpdate)
	return m
}

// WarmStart reloads the persisted live set after a restart.
func (m *Manager) WarmStart(ctx context.Context) {
	restored := m.store.LoadPositions(ctx)
	if len(restored) == 0 {
		return
	}
	m.mu.Lock()
	for _, p := range restored {
		if p.ClosedAt == nil {
			m.positions[p.ID] = p
		}
	}
	n := len(m.positions)
	m.mu.Unlock()
	logger.Info(ctx, "Restored positions from snapshot", "count", n)
}

// Open creates a position, persists it and publishes a position-opened
// event.
func (m *Manager) Open(ctx context.Context, params OpenParams) (types.Position, error) {
	if params.Symbol == "" || params.EntryPrice <= 0 || params.Size <= 0 {
		return types.Position{}, fmt.Errorf("invalid open params: symbol=%q entry=%.4f size=%.4f",
			params.Symbol, params.EntryPrice, params.Size)
	}
	leverage := params.Leverage
	if leverage < 1 {
		leverage = 1
	}

	p := types.Position{
		ID:         fmt.Sprintf("%s-%s-%s-%s", m.exchangeName, params.Symbol, params.Side, ulid.Make()),
		Symbol:     params.Symbol,
		Side:       params.Side,
		EntryPrice: params.EntryPrice,
		Size:       params.Size,
		Leverage:   leverage,
		StopLoss:   params.StopLoss,
		TakeProfit: params.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.positions[p.ID] = p
	m.mu.Unlock()

	m.persist(ctx)
	logger.Info(ctx, "Position opened",
		"id", p.ID, "symbol", p.Symbol, "side", p.Side,
		"entry", p.EntryPrice, "size", p.Size, "leverage", p.Leverage)
	m.bus.Publish(ctx, bus.TopicPositionOpened, p)
	return p, nil
}

// Close removes a position from the live set, finalizing its PnL at
// exitPrice when one is given (pass 0 for none). Returns nil for an
// unknown id.
func (m *Manager) Close(ctx context.Context, id string, reason types.CloseReason, exitPrice float64) *types.Position {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		logger.Warn(ctx, "Close requested for unknown position", "id", id, "reason", reason)
		return nil
	}
	delete(m.positions, id)
	m.mu.Unlock()

	now := time.Now().UTC()
	p.ClosedAt = &now
	p.CloseReason = reason
	if exitPrice > 0 {
		p.ExitPrice = exitPrice
		p.UnrealizedPnL = p.PnLAt(exitPrice)
	}

	m.persist(ctx)
	m.record(ctx, p)
	logger.Info(ctx, "Position closed",
		"id", p.ID, "symbol", p.Symbol, "side", p.Side,
		"reason", reason, "exit", exitPrice, "pnl", p.UnrealizedPnL)
	m.bus.Publish(ctx, bus.TopicPositionClosed, p)
	return &p
}

// CloseAll closes every live position, invoking the exchange first.
// Exchange failures are logged and do not prevent the local close.
func (m *Manager) CloseAll(ctx context.Context, reason types.CloseReason) {
	for _, p := range m.Live() {
		if m.ex != nil {
			if err := m.ex.Close(ctx, p); err != nil {
				logger.ErrorWithErr(ctx, "Exchange close failed", err, "id", p.ID, "symbol", p.Symbol)
			}
		}
		m.Close(ctx, p.ID, reason, 0)
	}
}

// Live returns copies of all open positions.
func (m *Manager) Live() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// BySymbol returns copies of live positions on a symbol.
func (m *Manager) BySymbol(symbol string) []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Position
	for _, p := range m.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// TotalPnL sums unrealized PnL across live positions.
func (m *Manager) TotalPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, p := range m.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalExposure sums size times leverage across live positions.
func (m *Manager) TotalExposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0.0
	for _, p := range m.positions {
		total += p.Exposure()
	}
	return total
}

// Count returns the number of live positions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// Stop detaches the manager from the price stream.
func (m *Manager) Stop() {
	m.sub.Unsubscribe()
}

// onPriceUpdate marks affected positions to market and enforces
// protective exits. A position closed by the stop check is skipped by
// the take-profit check in the same tick.
func (m *Manager) onPriceUpdate(ctx context.Context, payload any) {
	update, ok := payload.(types.PriceUpdate)
	if !ok || update.Price <= 0 {
		return
	}

	type trigger struct {
		p      types.Position
		reason types.CloseReason
	}
	var triggered []trigger

	m.mu.Lock()
	for id, p := range m.positions {
		if p.Symbol != update.Symbol {
			continue
		}
		p.UnrealizedPnL = p.PnLAt(update.Price)
		m.positions[id] = p

		switch {
		case hitStopLoss(p, update.Price):
			triggered = append(triggered, trigger{p: p, reason: types.CloseStopLoss})
		case hitTakeProfit(p, update.Price):
			triggered = append(triggered, trigger{p: p, reason: types.CloseTakeProfit})
		}
	}
	m.mu.Unlock()

	for _, t := range triggered {
		logger.Warn(ctx, "Protective exit triggered",
			"event", "PROTECTIVE_EXIT",
			"id", t.p.ID, "symbol", t.p.Symbol, "side", t.p.Side,
			"reason", t.reason, "price", update.Price)
		if m.ex != nil {
			exCtx, cancel := context.WithTimeout(ctx, closeTimeout)
			if err := m.ex.Close(exCtx, t.p); err != nil {
				logger.ErrorWithErr(ctx, "Exchange close failed on protective exit", err,
					"id", t.p.ID, "symbol", t.p.Symbol)
			}
			cancel()
		}
		m.Close(ctx, t.p.ID, t.reason, update.Price)
	}
}

func hitStopLoss(p types.Position, price float64) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Side == types.Long {
		return price <= *p.StopLoss
	}
	return price >= *p.StopLoss
}

func hitTakeProfit(p types.Position, price float64) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Side == types.Long {
		return price >= *p.TakeProfit
	}
	return price <= *p.TakeProfit
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.store.SavePositions(ctx, m.Live()); err != nil {
		logger.Warn(ctx, "Failed to persist positions", "error", err)
	}
}

func (m *Manager) record(ctx context.Context, p types.Position) {
	if m.journal == nil || p.ClosedAt == nil {
		return
	}
	err := m.journal.RecordTrade(journal.TradeRecord{
		ID:          p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Size:        p.Size,
		Leverage:    p.Leverage,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		OpenedAt:    p.OpenedAt,
		ClosedAt:    *p.ClosedAt,
		RealizedPnL: p.UnrealizedPnL,
		Reason:      p.CloseReason,
	})
	if err != nil {
		logger.Warn(ctx, "Failed to journal closed trade", "id", p.ID, "error", err)
	}
}
