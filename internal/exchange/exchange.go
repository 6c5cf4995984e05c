// Package exchange defines the injected execution surface. The agent
// core never speaks an exchange wire protocol; order placement is
// delegated to whatever implementation is wired in at bootstrap. Calls
// are best-effort: callers log failures and proceed.
package exchange

import (
	"context"
	"sync"

	"leverage-agent/internal/logger"
	"leverage-agent/internal/types"
)

// Order is a request to open a leveraged position.
type Order struct {
	Symbol   string
	Side     types.Side
	Amount   float64 // notional, quote currency
	Leverage int
}

// Exchange executes opens and closes against a venue.
type Exchange interface {
	Open(ctx context.Context, o Order) error
	Close(ctx context.Context, p types.Position) error
}

// Sim is a no-op execution venue used for DRY_RUN mode and tests. It
// records every call.
type Sim struct {
	mu     sync.Mutex
	opened []Order
	closed []types.Position

	// OpenErr/CloseErr, when set, are returned by the respective call so
	// tests can exercise best-effort failure paths.
	OpenErr  error
	CloseErr error
}

func NewSim() *Sim { return &Sim{} }

func (s *Sim) Open(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.opened = append(s.opened, o)
	logger.Info(ctx, "Simulated order open",
		"symbol", o.Symbol, "side", o.Side, "amount", o.Amount, "leverage", o.Leverage)
	return nil
}

func (s *Sim) Close(ctx context.Context, p types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CloseErr != nil {
		return s.CloseErr
	}
	s.closed = append(s.closed, p)
	logger.Info(ctx, "Simulated order close", "id", p.ID, "symbol", p.Symbol, "side", p.Side)
	return nil
}

// Opened returns a copy of the recorded open calls.
func (s *Sim) Opened() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, len(s.opened))
	copy(out, s.opened)
	return out
}

// Closed returns a copy of the recorded close calls.
func (s *Sim) Closed() []types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Position, len(s.closed))
	copy(out, s.closed)
	return out
}
