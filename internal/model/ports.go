package model

import (
	"context"
	"time"
)

// Port interfaces. These decouple the worker and reconciler from concrete
// Redis/Postgres/HTTP implementations so both can be exercised with fakes.

// LimitVerdict is the result of an atomic daily-cap reservation.
type LimitVerdict int

const (
	LimitAllowed   LimitVerdict = 1
	LimitGlobalHit LimitVerdict = -1
	LimitSymbolHit LimitVerdict = -2
)

// LimitGate reserves and releases daily trade-count slots atomically across
// all worker processes. Reserve increments both counters only when neither
// cap is hit; Rollback undoes a reservation after a failed placement.
type LimitGate interface {
	Reserve(ctx context.Context, symbol string, globalLimit, symbolLimit int) (LimitVerdict, error)
	Rollback(ctx context.Context, symbol string) error
}

// OrderPlacer places market orders with the broker and returns the broker
// order id. A non-nil error covers transport failures, timeouts, and logical
// rejections (s != "ok") alike.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol string, qty int, side int) (string, error)
}

// TradeFunc runs against a trade row while its row lock is held. Mutations go
// through the TradeMutator so they commit atomically with the lock.
type TradeFunc func(ctx context.Context, t *Trade, m TradeMutator) error

// TradeMutator applies updates to the locked trade row.
type TradeMutator interface {
	// MarkPendingEntry records the entry order and moves PENDING → PENDING_ENTRY.
	MarkPendingEntry(ctx context.Context, orderID string) error
	// MarkExpired moves PENDING → EXPIRED with a cap reason.
	MarkExpired(ctx context.Context, reason string) error
	// MarkFailed terminates the trade after a failed or rejected entry.
	MarkFailed(ctx context.Context) error
	// MarkPendingExit records the exit order and moves OPEN → PENDING_EXIT.
	MarkPendingExit(ctx context.Context, orderID, reason string) error
	// MoveStopToBreakeven relocates the stop and latches is_breakeven_moved.
	MoveStopToBreakeven(ctx context.Context, newStop float64) error
	// MarkOpen records the entry fill and moves PENDING_ENTRY → OPEN.
	MarkOpen(ctx context.Context, fillPrice float64) error
	// MarkClosed records the exit fill and realized P&L.
	MarkClosed(ctx context.Context, fillPrice, pnl float64) error
	// RevertExit clears the exit order and moves PENDING_EXIT → OPEN.
	RevertExit(ctx context.Context, reason string) error
}

// TradeStore is the persistence surface shared by the worker and reconciler.
type TradeStore interface {
	// InsertPendingTrade persists a new PENDING trade and returns its id.
	InsertPendingTrade(ctx context.Context, t *Trade) (int64, error)

	// TradeIDsBySymbolStatus lists candidate rows without locking them.
	TradeIDsBySymbolStatus(ctx context.Context, symbol string, status TradeStatus) ([]int64, error)

	// CountActiveToday counts non-EXPIRED/FAILED trades for symbol on day.
	// Advisory only; the cache counters are authoritative at trigger time.
	CountActiveToday(ctx context.Context, symbol string, day time.Time) (int, error)

	// WithLockedTrade locks the row with skip-locked semantics. If the row is
	// gone or held by another worker, fn is not called and the error is nil.
	WithLockedTrade(ctx context.Context, id int64, fn TradeFunc) error

	// WithTradeByEntryOrder / WithTradeByExitOrder lock by order id with a
	// blocking lock (order updates must not be dropped). The bool reports
	// whether a row matched.
	WithTradeByEntryOrder(ctx context.Context, orderID string, fn TradeFunc) (bool, error)
	WithTradeByExitOrder(ctx context.Context, orderID string, fn TradeFunc) (bool, error)
}
