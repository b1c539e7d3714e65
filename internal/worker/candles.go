package worker

import (
	"context"
	"fmt"
	"log"

	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/internal/strategy"
)

// HandleCandle evaluates one closed minute bar against the breakdown pattern
// and persists a PENDING setup when it matches. Arming a setup spends no cap
// slot; the counters are charged at trigger time on the tape.
func (svc *Service) HandleCandle(ctx context.Context, c model.Candle) error {
	ref, ok := svc.prevDay[c.Symbol]
	if !ok {
		// No completed prior session cached: symbol is not tradable today.
		return nil
	}

	if !strategy.MeetsTurnover(c, svc.settings.VolumeThreshold) {
		return nil
	}
	if !strategy.IsBreakdown(c, ref.Low) {
		return nil
	}

	// Advisory pre-filter on today's DB count. The cache counter stays
	// authoritative at trigger time; this only avoids arming setups that
	// could never fire.
	n, err := svc.store.CountActiveToday(ctx, c.Symbol, svc.now())
	if err != nil {
		return fmt.Errorf("count today %s: %w", c.Symbol, err)
	}
	if n >= svc.settings.MaxTradesPerSymbol {
		log.Printf("[algoworker] %s: breakdown ignored, already %d trade(s) today", c.Symbol, n)
		return nil
	}

	plan, err := strategy.BuildPlan(c, svc.settings)
	if err != nil {
		log.Printf("[algoworker] %s: breakdown rejected: %v", c.Symbol, err)
		return nil
	}

	t := &model.Trade{
		Symbol:       c.Symbol,
		CandleTS:     c.TS,
		CandleOpen:   c.Open,
		CandleHigh:   c.High,
		CandleLow:    c.Low,
		CandleClose:  c.Close,
		CandleVolume: c.Volume,
		PrevDayLow:   ref.Low,
		EntryLevel:   plan.EntryLevel,
		StopLoss:     plan.StopLoss,
		TargetPrice:  plan.TargetPrice,
		Quantity:     plan.Quantity,
	}
	id, err := svc.store.InsertPendingTrade(ctx, t)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", c.Symbol, err)
	}

	svc.prom.TradesCreated.Inc()
	svc.trades.Info("breakdown armed",
		"trade_id", id,
		"symbol", c.Symbol,
		"pdl", ref.Low,
		"candle_close", c.Close,
		"entry_level", plan.EntryLevel,
		"stop_loss", plan.StopLoss,
		"target", plan.TargetPrice,
		"qty", plan.Quantity,
	)
	return nil
}
