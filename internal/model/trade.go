package model

import "time"

// TradeStatus enumerates the trade lifecycle.
//
// PENDING → PENDING_ENTRY → OPEN → PENDING_EXIT → CLOSED, with FAILED and
// EXPIRED as early terminals. A rejected exit reverts PENDING_EXIT → OPEN.
type TradeStatus string

const (
	StatusPending      TradeStatus = "PENDING"
	StatusPendingEntry TradeStatus = "PENDING_ENTRY"
	StatusOpen         TradeStatus = "OPEN"
	StatusPendingExit  TradeStatus = "PENDING_EXIT"
	StatusClosed       TradeStatus = "CLOSED"
	StatusFailed       TradeStatus = "FAILED"
	StatusExpired      TradeStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TradeStatus) Terminal() bool {
	return s == StatusClosed || s == StatusFailed || s == StatusExpired
}

// Exit/expiry reasons recorded on trades. The dashboard filters on these
// strings, so they are part of the interop contract.
const (
	ReasonStopLoss    = "Stop Loss"
	ReasonTarget      = "Target"
	ReasonOrderFailed = "Order Failed"
	ReasonGlobalCap   = "Global Limit Reached"
	ReasonSymbolCap   = "Symbol Limit Reached"
)

// Trade is the central entity: one short setup from pattern detection through
// entry, management, and exit. Zero values stand in for SQL NULLs (empty
// order ids, zero prices) and are mapped by the store layer.
type Trade struct {
	ID     int64
	Symbol string
	Status TradeStatus

	// Snapshot of the candle that triggered the setup.
	CandleTS     time.Time
	CandleOpen   float64
	CandleHigh   float64
	CandleLow    float64
	CandleClose  float64
	CandleVolume int64
	PrevDayLow   float64

	// Plan.
	EntryLevel       float64
	StopLoss         float64
	TargetPrice      float64
	Quantity         int
	IsBreakevenMoved bool

	// Execution.
	EntryOrderID     string
	ExitOrderID      string
	ActualEntryPrice float64
	ActualExitPrice  float64

	// Outcome.
	PnL        float64
	ExitReason string
	CreatedAt  time.Time
}

// EntryReference returns the actual fill price when known, else the planned
// entry level. Break-even and P&L math key off this value.
func (t *Trade) EntryReference() float64 {
	if t.ActualEntryPrice > 0 {
		return t.ActualEntryPrice
	}
	return t.EntryLevel
}
