package types

import "time"

// Side is the direction of a leveraged position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// CloseReason records why a position left the live set.
type CloseReason string

const (
	CloseManual     CloseReason = "manual"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
	CloseSurvival   CloseReason = "survival"
	CloseShutdown   CloseReason = "shutdown"
)

// Position is the authoritative record of one open (or closed) trade.
// Owned by the position manager; everyone else gets copies.
type Position struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	EntryPrice    float64     `json:"entry_price"`
	Size          float64     `json:"size"` // notional, quote currency
	Leverage      int         `json:"leverage"`
	StopLoss      *float64    `json:"stop_loss,omitempty"`
	TakeProfit    *float64    `json:"take_profit,omitempty"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	OpenedAt      time.Time   `json:"opened_at"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
	ExitPrice     float64     `json:"exit_price,omitempty"`
	CloseReason   CloseReason `json:"close_reason,omitempty"`
}

// Exposure is notional size times leverage.
func (p Position) Exposure() float64 { return p.Size * float64(p.Leverage) }

// PnLAt returns the unrealized PnL of the position marked at price.
func (p Position) PnLAt(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.Size * ((price - p.EntryPrice) / p.EntryPrice) * p.Side.Sign() * float64(p.Leverage)
}

// Tick is one observed trade/ticker sample.
type Tick struct {
	Symbol string
	Price  float64
	High   float64
	Low    float64
	Ts     time.Time
}

// IndicatorSnapshot is the full per-symbol derived state of the market feed.
// Indicator pointers are nil until enough history exists.
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"price"`
	RSI       *float64  `json:"rsi,omitempty"`
	EMA20     *float64  `json:"ema20,omitempty"`
	EMA50     *float64  `json:"ema50,omitempty"`
	ATR       *float64  `json:"atr,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Action is the oracle's verdict kind.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

// Urgency grades how quickly the oracle wants the action taken.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Decision is the oracle's output for one cycle.
type Decision struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol,omitempty"`
	Confidence float64 `json:"confidence"`
	Leverage   int     `json:"leverage,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Urgency    Urgency `json:"urgency,omitempty"`
}

// PortfolioSnapshot is a read-only view handed to the risk manager.
type PortfolioSnapshot struct {
	Balance       float64
	TotalExposure float64
	PositionCount int
	Positions     []Position
}

// RiskVerdict is the risk manager's answer for one proposed trade.
type RiskVerdict struct {
	Allowed          bool
	Reason           string
	AdjustedLeverage int
	AdjustedSize     float64
}

// SurvivalState classifies the agent's capital health.
type SurvivalState string

const (
	StateGrowth    SurvivalState = "GROWTH"
	StateSurvival  SurvivalState = "SURVIVAL"
	StateRecovery  SurvivalState = "RECOVERY"
	StateDefensive SurvivalState = "DEFENSIVE"
	StateCritical  SurvivalState = "CRITICAL"
)

// Signal is one externally discovered alpha record.
type Signal struct {
	DiscoveredAt time.Time `json:"discovered_at"`
	Instruction  string    `json:"instruction"`
	Source       string    `json:"source"`
	Author       string    `json:"author"`
	RawText      string    `json:"raw_text"`
	Impact       string    `json:"impact"`
}

// PriceUpdate is the payload published on every feed tick.
type PriceUpdate struct {
	Symbol     string
	Price      float64
	Indicators IndicatorSnapshot
}

// SurvivalTransition is the payload published on a committed state change.
type SurvivalTransition struct {
	From       SurvivalState `json:"from"`
	To         SurvivalState `json:"to"`
	Ratio      float64       `json:"ratio"`
	PnLPercent float64       `json:"pnl_percent"`
	At         time.Time     `json:"at"`
}
