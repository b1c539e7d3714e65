// Package worker is the strategy and execution engine. It consumes closed
// minute bars and live ticks through the shared consumer group: candles arm
// breakdown setups as PENDING trades, ticks drive entries, exits, and the
// break-even trail. Entries spend daily cap slots through the atomic
// counter gate at trigger time.
package worker

import (
	"context"
	"log"
	"log/slog"
	"time"

	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/model"
	redisstore "breakdown-systemv1/internal/store/redis"
)

const (
	// PEL reclaim: candles a dead consumer left unacked are claimed after
	// one minute idle. Ticks are never reclaimed (stale LTP is worthless).
	reclaimInterval = 30 * time.Second
	reclaimMinIdle  = time.Minute
)

// Deps are the collaborators the worker runs against. Store, Gate, and
// Broker are narrow interfaces so the decision paths can be exercised with
// fakes; Reader is the concrete stream consumer.
type Deps struct {
	Reader  *redisstore.Reader
	Store   model.TradeStore
	Gate    model.LimitGate
	Broker  model.OrderPlacer
	Metrics *metrics.Metrics

	// Trades receives structured trade-lifecycle events (armed, entry,
	// exit, expiry, rollback). Defaults to the slog default logger.
	Trades *slog.Logger
}

// Service is one algo worker instance. Horizontal scaling is more processes
// joining the same consumer group; each stream message reaches exactly one
// of them.
type Service struct {
	settings model.Settings
	prevDay  map[string]model.DayOHLC

	reader *redisstore.Reader
	store  model.TradeStore
	gate   model.LimitGate
	broker model.OrderPlacer
	prom   *metrics.Metrics
	trades *slog.Logger

	now func() time.Time
}

// New wires a Service from a loaded settings snapshot, the previous-day
// reference cache, and its collaborators. Settings and reference data are
// read once; a restart picks up changes.
func New(settings model.Settings, prevDay map[string]model.DayOHLC, deps Deps) *Service {
	trades := deps.Trades
	if trades == nil {
		trades = slog.Default()
	}
	return &Service{
		settings: settings,
		prevDay:  prevDay,
		reader:   deps.Reader,
		store:    deps.Store,
		gate:     deps.Gate,
		broker:   deps.Broker,
		prom:     deps.Metrics,
		trades:   trades,
		now:      time.Now,
	}
}

// Run bootstraps the consumer group and blocks consuming both streams until
// ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	if err := svc.reader.EnsureGroups(ctx); err != nil {
		return err
	}

	svc.reader.OnMalformed = func(stream string) {
		svc.prom.MalformedMessages.Inc()
	}

	go svc.reader.StartPELReclaimer(ctx, reclaimInterval, reclaimMinIdle, svc.onCandle,
		func(count int) {
			svc.prom.PELReclaimed.Add(float64(count))
		})

	log.Printf("[algoworker] consuming %s + %s as %s (limits: %d/day, %d/symbol, risk %.0f, RR %.2f, BE %.2fR)",
		redisstore.CandleStream, redisstore.TickStream, svc.reader.ConsumerName(),
		svc.settings.MaxTradesPerDay, svc.settings.MaxTradesPerSymbol,
		svc.settings.RiskPerTradeAmount, svc.settings.RiskRewardRatio, svc.settings.BreakevenTriggerR)
	log.Printf("[algoworker] reference data loaded for %d symbols", len(svc.prevDay))

	return svc.reader.Consume(ctx, svc.onCandle, svc.onTick)
}

// onCandle/onTick wrap the handlers with consumption metrics. A handler
// error leaves the message unacked for the reclaim pass.
func (svc *Service) onCandle(ctx context.Context, c model.Candle) error {
	svc.prom.StreamMessages.WithLabelValues(redisstore.CandleStream).Inc()
	if err := svc.HandleCandle(ctx, c); err != nil {
		svc.prom.HandlerErrors.Inc()
		return err
	}
	return nil
}

func (svc *Service) onTick(ctx context.Context, t model.Tick) error {
	svc.prom.StreamMessages.WithLabelValues(redisstore.TickStream).Inc()
	if err := svc.HandleTick(ctx, t); err != nil {
		svc.prom.HandlerErrors.Inc()
		return err
	}
	return nil
}
