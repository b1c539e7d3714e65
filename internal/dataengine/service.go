// Package dataengine runs the tick-to-candle pipeline: broker data socket
// in, minute aggregation in the middle, Redis streams out. The hot path is
// the socket read loop; everything downstream hangs off buffered channels
// with non-blocking sends so a slow Redis never stalls the feed.
package dataengine

import (
	"context"
	"errors"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/model"
	redisstore "breakdown-systemv1/internal/store/redis"
	"breakdown-systemv1/pkg/fyers"
)

// ErrTokenUpdate reports that a fresh access token was announced on the
// token channel. The process should exit 0 and come back on the new token.
var ErrTokenUpdate = errors.New("dataengine: access token rotated")

const (
	tickChanSize   = 10000
	candleChanSize = 5000
)

// Ingester folds feed prints into minute bars. *agg.Aggregator in
// production; a fake in tests.
type Ingester interface {
	Ingest(symbol string, ltp float64, dayVolume int64) (model.Tick, *model.Candle)
}

// StreamWriter publishes pipeline output. *redisstore.BufferedWriter in
// production.
type StreamWriter interface {
	WriteTick(model.Tick) error
	WriteCandle(model.Candle) error
}

// Config holds the pipeline settings read from the environment.
type Config struct {
	// Symbols is the subscription universe, e.g. "NSE:SBIN-EQ".
	Symbols []string

	// BatchSize / BatchGap pace the subscription frames.
	BatchSize int
	BatchGap  time.Duration

	// EnforceHours makes Run sleep until the next session open before
	// connecting. Disable for staging feeds and replays.
	EnforceHours bool
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Socket  *fyers.DataSocket
	Bars    Ingester
	Writer  StreamWriter
	Redis   *goredis.Client // token pub/sub
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
}

// Service owns the channel stages between the socket and Redis.
type Service struct {
	cfg Config

	socket *fyers.DataSocket
	bars   Ingester
	writer StreamWriter
	rdb    *goredis.Client
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	tickCh   chan model.Tick
	candleCh chan model.Candle

	now func() time.Time
}

// New wires a Service.
func New(cfg Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		socket:   deps.Socket,
		bars:     deps.Bars,
		writer:   deps.Writer,
		rdb:      deps.Redis,
		prom:     deps.Metrics,
		health:   deps.Health,
		tickCh:   make(chan model.Tick, tickChanSize),
		candleCh: make(chan model.Candle, candleChanSize),
		now:      time.Now,
	}
}

// Run gates on market open, starts the drain stages, and blocks on the
// socket. It returns ErrTokenUpdate on a token rotation, fyers.ErrForbidden
// when the session died, and nil on clean shutdown; the caller maps those
// to exit codes.
func (s *Service) Run(ctx context.Context) error {
	if err := s.waitForOpen(ctx); err != nil {
		return nil
	}

	pubsub, err := redisstore.SubscribeTokenUpdates(ctx, s.rdb)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.drainTicks(sessionCtx)
	go s.drainCandles(sessionCtx)
	go s.watchMarketState(sessionCtx)

	s.socket.OnConnect = func() {
		s.health.SetWSConnected(true)
		if err := s.socket.Subscribe(s.cfg.Symbols, s.cfg.BatchSize, s.cfg.BatchGap); err != nil {
			log.Printf("[dataengine] subscribe failed: %v", err)
		}
	}
	s.socket.OnReconnect = func() {
		s.health.SetWSConnected(false)
		s.prom.WSReconnects.Inc()
	}
	s.socket.OnTick = s.onTick

	socketDone := make(chan error, 1)
	go func() { socketDone <- s.socket.Run(sessionCtx) }()

	log.Printf("[dataengine] pipeline ready: %d symbols, tick buffer %d, candle buffer %d",
		len(s.cfg.Symbols), tickChanSize, candleChanSize)

	select {
	case <-ctx.Done():
		<-socketDone
		return nil
	case <-pubsub.Channel():
		log.Printf("[dataengine] token updated, restarting for fresh credentials")
		cancel()
		<-socketDone
		return ErrTokenUpdate
	case err := <-socketDone:
		s.health.SetWSConnected(false)
		return err
	}
}

// waitForOpen blocks until the next session start. A disabled gate
// (staging, replay) connects immediately.
func (s *Service) waitForOpen(ctx context.Context) error {
	if !s.cfg.EnforceHours {
		return nil
	}
	now := s.now()
	if markethours.IsMarketOpen(now) {
		return nil
	}
	next := markethours.NextOpen(now)
	wait := next.Sub(now)
	log.Printf("[dataengine] %s", markethours.StatusString(now))
	log.Printf("[dataengine] sleeping %v until open %s",
		wait.Truncate(time.Second), next.In(markethours.IST).Format("Mon 15:04"))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// onTick runs serially on the socket read loop. It must never block: both
// sends fall through to a drop counter when the stage behind is full.
func (s *Service) onTick(msg fyers.TickMessage) {
	s.prom.TicksIngested.Inc()
	s.health.SetLastTickTime(s.now())

	tick, closed := s.bars.Ingest(msg.Symbol, msg.LTP, msg.VolTradedToday)
	select {
	case s.tickCh <- tick:
	default:
		s.prom.TicksDropped.Inc()
	}

	if closed == nil {
		return
	}
	select {
	case s.candleCh <- *closed:
	default:
		s.prom.CandlesDropped.Inc()
	}
}

func (s *Service) drainTicks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.tickCh:
			start := time.Now()
			if s.writer.WriteTick(t) != nil {
				continue // the breaker already counted the failure
			}
			s.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
			s.prom.TicksPublished.Inc()
		}
	}
}

func (s *Service) drainCandles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.candleCh:
			start := time.Now()
			if err := s.writer.WriteCandle(c); err != nil {
				log.Printf("[dataengine] candle publish failed for %s: %v", c.Symbol, err)
				continue
			}
			s.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
			s.prom.CandlesPublished.Inc()
		}
	}
}

// watchMarketState keeps the session gauge current for dashboards.
func (s *Service) watchMarketState(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		if markethours.IsMarketOpen(s.now()) {
			s.prom.MarketState.Set(1)
		} else {
			s.prom.MarketState.Set(0)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
