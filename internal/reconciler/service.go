// Package reconciler applies broker order updates to trade rows: entry fills
// open positions, exit fills close them with realized P&L, rejections fail
// the entry leg or reopen the position on the exit leg.
//
// Updates race the worker's tick paths and may repeat or arrive out of
// order, so every transition runs under a blocking row lock and re-verifies
// status inside it; anything already reconciled reduces to a no-op.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/internal/notification"
	"breakdown-systemv1/internal/strategy"
)

// Deps are the reconciler's collaborators. Notify may be nil to disable
// alerts.
type Deps struct {
	Store   model.TradeStore
	Metrics *metrics.Metrics
	Trades  *slog.Logger
	Notify  notification.Notifier
}

// Service reconciles one order-update feed against the trades table.
type Service struct {
	store  model.TradeStore
	prom   *metrics.Metrics
	trades *slog.Logger
	notify notification.Notifier
}

// New wires a Service. A nil Trades logger falls back to slog.Default().
func New(deps Deps) *Service {
	trades := deps.Trades
	if trades == nil {
		trades = slog.Default()
	}
	return &Service{
		store:  deps.Store,
		prom:   deps.Metrics,
		trades: trades,
		notify: deps.Notify,
	}
}

// Apply routes one order update to the trade owning it. The entry leg is
// tried first; an id matching neither leg belongs to a manual order on the
// same account and is logged at debug only.
func (svc *Service) Apply(ctx context.Context, u model.OrderUpdate) error {
	svc.prom.OrderUpdates.Inc()

	matched, err := svc.store.WithTradeByEntryOrder(ctx, u.ID, func(ctx context.Context, t *model.Trade, m model.TradeMutator) error {
		return svc.applyEntry(ctx, t, m, u)
	})
	if err != nil {
		return fmt.Errorf("reconcile entry %s: %w", u.ID, err)
	}
	if matched {
		return nil
	}

	matched, err = svc.store.WithTradeByExitOrder(ctx, u.ID, func(ctx context.Context, t *model.Trade, m model.TradeMutator) error {
		return svc.applyExit(ctx, t, m, u)
	})
	if err != nil {
		return fmt.Errorf("reconcile exit %s: %w", u.ID, err)
	}
	if !matched {
		svc.trades.Debug("order update unmatched", "order_id", u.ID, "status", u.Status, "symbol", u.Symbol)
	}
	return nil
}

func (svc *Service) applyEntry(ctx context.Context, t *model.Trade, m model.TradeMutator, u model.OrderUpdate) error {
	switch u.Status {
	case model.OrderTraded:
		if t.Status != model.StatusPendingEntry {
			return nil // repeat delivery, already reconciled
		}
		if err := m.MarkOpen(ctx, u.TradedPrice); err != nil {
			return err
		}
		svc.prom.TradesOpened.Inc()
		svc.trades.Info("entry filled",
			"trade_id", t.ID, "symbol", t.Symbol, "order_id", u.ID,
			"fill", u.TradedPrice, "qty", t.Quantity)
		return nil

	case model.OrderCancelled, model.OrderRejected:
		if t.Status != model.StatusPendingEntry {
			// A cancel landing after the fill contradicts recorded state;
			// keep the position and let the exit paths manage it.
			if !t.Status.Terminal() {
				svc.trades.Warn("entry cancel after fill ignored",
					"trade_id", t.ID, "symbol", t.Symbol, "status", string(t.Status), "order_id", u.ID)
			}
			return nil
		}
		if err := m.MarkFailed(ctx); err != nil {
			return err
		}
		svc.prom.TradesFailed.Inc()
		svc.trades.Warn("entry rejected",
			"trade_id", t.ID, "symbol", t.Symbol, "order_id", u.ID, "broker_status", u.Status)
		svc.alert(notification.AlertWarning, "Trade failed",
			fmt.Sprintf("%s entry order %s was rejected or cancelled by the broker", t.Symbol, u.ID))
		return nil
	}
	return nil // transit (4) and pending (6) carry no state change
}

func (svc *Service) applyExit(ctx context.Context, t *model.Trade, m model.TradeMutator, u model.OrderUpdate) error {
	switch u.Status {
	case model.OrderTraded:
		if t.Status != model.StatusPendingExit {
			return nil // repeat delivery, already closed
		}
		pnl := strategy.ShortPnL(t.EntryReference(), u.TradedPrice, t.Quantity)
		if err := m.MarkClosed(ctx, u.TradedPrice, pnl); err != nil {
			return err
		}
		svc.prom.TradesClosed.Inc()
		svc.trades.Info("trade closed",
			"trade_id", t.ID, "symbol", t.Symbol, "order_id", u.ID,
			"fill", u.TradedPrice, "pnl", pnl, "reason", t.ExitReason)
		svc.alert(notification.AlertInfo, "Trade closed",
			fmt.Sprintf("%s closed at %.2f (%s), P&L %.2f", t.Symbol, u.TradedPrice, t.ExitReason, pnl))
		return nil

	case model.OrderCancelled, model.OrderRejected:
		if t.Status != model.StatusPendingExit {
			return nil
		}
		if err := m.RevertExit(ctx, model.ReasonOrderFailed); err != nil {
			return err
		}
		svc.prom.ExitReverts.Inc()
		svc.trades.Warn("exit rejected, position reopened",
			"trade_id", t.ID, "symbol", t.Symbol, "order_id", u.ID, "broker_status", u.Status)
		svc.alert(notification.AlertCritical, "Exit order failed",
			fmt.Sprintf("%s exit order %s was rejected; position reopened for retry", t.Symbol, u.ID))
		return nil
	}
	return nil
}

// alert delivers asynchronously so a slow backend never holds the row lock
// or the socket read loop. Send failures are logged by the backend fan-out.
func (svc *Service) alert(level notification.AlertLevel, title, msg string) {
	if svc.notify == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.notify.Send(ctx, notification.Alert{Level: level, Title: title, Message: msg})
	}()
}
