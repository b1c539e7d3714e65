package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements model.TradeStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ model.TradeStore = (*Store)(nil)

const tradeColumns = `id, symbol, status,
	candle_ts, candle_open, candle_high, candle_low, candle_close, candle_volume, prev_day_low,
	entry_level, stop_loss, target_price, quantity,
	entry_order_id, exit_order_id, actual_entry_price, actual_exit_price,
	is_breakeven_moved, pnl, exit_reason, created_at`

// scanTrade maps one row onto a Trade, folding SQL NULLs into zero values.
func scanTrade(row pgx.Row) (*model.Trade, error) {
	var (
		t            model.Trade
		status       string
		entryOrderID *string
		exitOrderID  *string
		actualEntry  *float64
		actualExit   *float64
		pnl          *float64
		exitReason   *string
	)
	err := row.Scan(
		&t.ID, &t.Symbol, &status,
		&t.CandleTS, &t.CandleOpen, &t.CandleHigh, &t.CandleLow, &t.CandleClose, &t.CandleVolume, &t.PrevDayLow,
		&t.EntryLevel, &t.StopLoss, &t.TargetPrice, &t.Quantity,
		&entryOrderID, &exitOrderID, &actualEntry, &actualExit,
		&t.IsBreakevenMoved, &pnl, &exitReason, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = model.TradeStatus(status)
	if entryOrderID != nil {
		t.EntryOrderID = *entryOrderID
	}
	if exitOrderID != nil {
		t.ExitOrderID = *exitOrderID
	}
	if actualEntry != nil {
		t.ActualEntryPrice = *actualEntry
	}
	if actualExit != nil {
		t.ActualExitPrice = *actualExit
	}
	if pnl != nil {
		t.PnL = *pnl
	}
	if exitReason != nil {
		t.ExitReason = *exitReason
	}
	return &t, nil
}

// InsertPendingTrade persists a fresh PENDING setup and returns its id.
func (s *Store) InsertPendingTrade(ctx context.Context, t *model.Trade) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO trades (
			symbol, status,
			candle_ts, candle_open, candle_high, candle_low, candle_close, candle_volume, prev_day_low,
			entry_level, stop_loss, target_price, quantity
		) VALUES ($1, 'PENDING', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		t.Symbol,
		t.CandleTS, t.CandleOpen, t.CandleHigh, t.CandleLow, t.CandleClose, t.CandleVolume, t.PrevDayLow,
		t.EntryLevel, t.StopLoss, t.TargetPrice, t.Quantity,
	)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	t.Status = model.StatusPending
	return t.ID, nil
}

// TradeIDsBySymbolStatus lists candidate rows without locking them. The ids
// are re-fetched under lock before any mutation.
func (s *Store) TradeIDsBySymbolStatus(ctx context.Context, symbol string, status model.TradeStatus) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM trades WHERE symbol = $1 AND status = $2 ORDER BY id`,
		symbol, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trade id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActiveToday counts trades created on the given IST trading day for
// symbol, excluding EXPIRED and FAILED rows (those never consumed a cap
// slot). Advisory only; the cache counters decide at trigger time.
func (s *Store) CountActiveToday(ctx context.Context, symbol string, day time.Time) (int, error) {
	ist := day.In(markethours.IST)
	start := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, markethours.IST)
	end := start.Add(24 * time.Hour)

	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades
		WHERE symbol = $1
		  AND created_at >= $2 AND created_at < $3
		  AND status NOT IN ('EXPIRED', 'FAILED')`,
		symbol, start, end,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

// WithLockedTrade runs fn against the row under FOR UPDATE SKIP LOCKED.
// A row that is gone or currently locked by another worker is skipped
// silently; whoever holds the lock owns the transition.
func (s *Store) WithLockedTrade(ctx context.Context, id int64, fn model.TradeFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTrade(tx.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE SKIP LOCKED`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock trade %d: %w", id, err)
	}

	if err := fn(ctx, t, &txMutator{tx: tx, id: t.ID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithTradeByEntryOrder locks the trade owning this entry order id with a
// plain blocking FOR UPDATE: an order update must wait for the lock rather
// than be dropped. The bool reports whether any row matched.
func (s *Store) WithTradeByEntryOrder(ctx context.Context, orderID string, fn model.TradeFunc) (bool, error) {
	return s.withTradeByOrder(ctx, "entry_order_id", orderID, fn)
}

// WithTradeByExitOrder is WithTradeByEntryOrder for the exit leg.
func (s *Store) WithTradeByExitOrder(ctx context.Context, orderID string, fn model.TradeFunc) (bool, error) {
	return s.withTradeByOrder(ctx, "exit_order_id", orderID, fn)
}

func (s *Store) withTradeByOrder(ctx context.Context, column, orderID string, fn model.TradeFunc) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTrade(tx.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE `+column+` = $1 FOR UPDATE`, orderID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock trade by %s: %w", column, err)
	}

	if err := fn(ctx, t, &txMutator{tx: tx, id: t.ID}); err != nil {
		return true, err
	}
	return true, tx.Commit(ctx)
}

// txMutator applies row updates inside the locking transaction, so a handler
// failure rolls every change back along with the lock.
type txMutator struct {
	tx pgx.Tx
	id int64
}

var _ model.TradeMutator = (*txMutator)(nil)

func (m *txMutator) exec(ctx context.Context, sql string, args ...interface{}) error {
	args = append([]interface{}{m.id}, args...)
	if _, err := m.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update trade %d: %w", m.id, err)
	}
	return nil
}

func (m *txMutator) MarkPendingEntry(ctx context.Context, orderID string) error {
	return m.exec(ctx, `UPDATE trades SET status = 'PENDING_ENTRY', entry_order_id = $2, updated_at = now() WHERE id = $1`, orderID)
}

func (m *txMutator) MarkExpired(ctx context.Context, reason string) error {
	return m.exec(ctx, `UPDATE trades SET status = 'EXPIRED', exit_reason = $2, updated_at = now() WHERE id = $1`, reason)
}

func (m *txMutator) MarkFailed(ctx context.Context) error {
	return m.exec(ctx, `UPDATE trades SET status = 'FAILED', updated_at = now() WHERE id = $1`)
}

func (m *txMutator) MarkPendingExit(ctx context.Context, orderID, reason string) error {
	return m.exec(ctx, `UPDATE trades SET status = 'PENDING_EXIT', exit_order_id = $2, exit_reason = $3, updated_at = now() WHERE id = $1`, orderID, reason)
}

func (m *txMutator) MoveStopToBreakeven(ctx context.Context, newStop float64) error {
	return m.exec(ctx, `UPDATE trades SET stop_loss = $2, is_breakeven_moved = TRUE, updated_at = now() WHERE id = $1`, newStop)
}

func (m *txMutator) MarkOpen(ctx context.Context, fillPrice float64) error {
	return m.exec(ctx, `UPDATE trades SET status = 'OPEN', actual_entry_price = $2, updated_at = now() WHERE id = $1`, fillPrice)
}

func (m *txMutator) MarkClosed(ctx context.Context, fillPrice, pnl float64) error {
	return m.exec(ctx, `UPDATE trades SET status = 'CLOSED', actual_exit_price = $2, pnl = $3, updated_at = now() WHERE id = $1`, fillPrice, pnl)
}

func (m *txMutator) RevertExit(ctx context.Context, reason string) error {
	return m.exec(ctx, `UPDATE trades SET status = 'OPEN', exit_order_id = NULL, exit_reason = $2, updated_at = now() WHERE id = $1`, reason)
}
