package worker

import (
	"context"
	"fmt"
	"log"

	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/internal/strategy"
)

// HandleTick drives both execution paths for one LTP print: entries for
// PENDING setups, then exits and the break-even trail for OPEN positions.
func (svc *Service) HandleTick(ctx context.Context, tk model.Tick) error {
	if err := svc.entryPass(ctx, tk); err != nil {
		return err
	}
	return svc.exitPass(ctx, tk)
}

// entryPass triggers short entries. Candidate rows are listed without locks,
// then each is re-read under a skip-locked row lock: a row held by another
// worker is skipped (that worker owns the transition), and status is
// re-checked inside the lock so a setup never fires twice.
func (svc *Service) entryPass(ctx context.Context, tk model.Tick) error {
	ids, err := svc.store.TradeIDsBySymbolStatus(ctx, tk.Symbol, model.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending %s: %w", tk.Symbol, err)
	}

	for _, id := range ids {
		err := svc.store.WithLockedTrade(ctx, id, func(ctx context.Context, t *model.Trade, m model.TradeMutator) error {
			if t.Status != model.StatusPending {
				return nil
			}
			if !strategy.EntryTriggered(t, tk.LTP) {
				return nil
			}
			return svc.triggerEntry(ctx, t, m, tk.LTP)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// triggerEntry spends a cap slot and places the entry order. Runs with the
// row lock held.
func (svc *Service) triggerEntry(ctx context.Context, t *model.Trade, m model.TradeMutator, ltp float64) error {
	verdict, err := svc.gate.Reserve(ctx, t.Symbol, svc.settings.MaxTradesPerDay, svc.settings.MaxTradesPerSymbol)
	if err != nil {
		// Counter authority unreachable: abort, leave the trade PENDING.
		return fmt.Errorf("reserve slot %s: %w", t.Symbol, err)
	}

	switch verdict {
	case model.LimitGlobalHit:
		svc.prom.CapRejections.WithLabelValues("global").Inc()
		svc.trades.Warn("entry refused", "trade_id", t.ID, "symbol", t.Symbol, "reason", model.ReasonGlobalCap)
		return m.MarkExpired(ctx, model.ReasonGlobalCap)
	case model.LimitSymbolHit:
		svc.prom.CapRejections.WithLabelValues("symbol").Inc()
		svc.trades.Warn("entry refused", "trade_id", t.ID, "symbol", t.Symbol, "reason", model.ReasonSymbolCap)
		return m.MarkExpired(ctx, model.ReasonSymbolCap)
	}

	orderID, err := svc.broker.PlaceMarketOrder(ctx, t.Symbol, t.Quantity, model.SideSell)
	if err != nil {
		svc.prom.OrderFailures.Inc()
		// Release the reserved slot; a failed rollback leaves the counter
		// conservatively high until its TTL expires.
		if rbErr := svc.gate.Rollback(ctx, t.Symbol); rbErr != nil {
			log.Printf("[algoworker] %s: counter rollback failed: %v", t.Symbol, rbErr)
		} else {
			svc.prom.CounterRollback.Inc()
		}
		svc.trades.Error("entry order failed", "trade_id", t.ID, "symbol", t.Symbol, "qty", t.Quantity, "err", err.Error())
		return m.MarkFailed(ctx)
	}

	svc.prom.OrdersPlaced.WithLabelValues("sell").Inc()
	if err := m.MarkPendingEntry(ctx, orderID); err != nil {
		// The order is live but unrecorded; surface loudly for manual
		// reconciliation before letting the message retry.
		log.Printf("[algoworker] CRITICAL: %s order %s placed but not recorded: %v", t.Symbol, orderID, err)
		return err
	}
	svc.trades.Info("entry placed",
		"trade_id", t.ID, "symbol", t.Symbol, "order_id", orderID,
		"ltp", ltp, "entry_level", t.EntryLevel, "qty", t.Quantity)
	return nil
}

// exitPass covers OPEN positions: stop/target exits first, then the one-shot
// break-even stop move. Same lock discipline as entries.
func (svc *Service) exitPass(ctx context.Context, tk model.Tick) error {
	ids, err := svc.store.TradeIDsBySymbolStatus(ctx, tk.Symbol, model.StatusOpen)
	if err != nil {
		return fmt.Errorf("list open %s: %w", tk.Symbol, err)
	}

	for _, id := range ids {
		err := svc.store.WithLockedTrade(ctx, id, func(ctx context.Context, t *model.Trade, m model.TradeMutator) error {
			if t.Status != model.StatusOpen {
				return nil
			}

			if reason, hit := strategy.ExitCheck(t, tk.LTP); hit {
				orderID, err := svc.broker.PlaceMarketOrder(ctx, t.Symbol, t.Quantity, model.SideBuy)
				if err != nil {
					// Leave the row OPEN; the next qualifying tick retries.
					svc.prom.OrderFailures.Inc()
					log.Printf("[algoworker] %s: exit order failed (%s): %v", t.Symbol, reason, err)
					return nil
				}
				svc.prom.OrdersPlaced.WithLabelValues("buy").Inc()
				if err := m.MarkPendingExit(ctx, orderID, reason); err != nil {
					log.Printf("[algoworker] CRITICAL: %s order %s placed but not recorded: %v", t.Symbol, orderID, err)
					return err
				}
				svc.trades.Info("exit placed",
					"trade_id", t.ID, "symbol", t.Symbol, "order_id", orderID,
					"reason", reason, "ltp", tk.LTP, "qty", t.Quantity)
				return nil
			}

			if newStop, move := strategy.BreakevenStop(t, tk.LTP, svc.settings.BreakevenTriggerR); move {
				if err := m.MoveStopToBreakeven(ctx, newStop); err != nil {
					return err
				}
				svc.prom.BreakevenMoves.Inc()
				svc.trades.Info("stop moved to break-even",
					"trade_id", t.ID, "symbol", t.Symbol, "new_stop", newStop, "ltp", tk.LTP)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
