package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"breakdown-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Tick stream churns fast; candles arrive once per symbol-minute, so a
	// much smaller trim window still holds days of bars.
	defaultTickMaxLen   = 100_000
	defaultCandleMaxLen = 20_000
)

// WriterConfig configures the stream writer.
type WriterConfig struct {
	Addr     string
	Password string
	DB       int

	// TickMaxLen / CandleMaxLen bound stream length via approximate trimming.
	TickMaxLen   int64
	CandleMaxLen int64
}

func (c *WriterConfig) defaults() {
	if c.TickMaxLen <= 0 {
		c.TickMaxLen = defaultTickMaxLen
	}
	if c.CandleMaxLen <= 0 {
		c.CandleMaxLen = defaultCandleMaxLen
	}
}

// Writer publishes ticks and closed candles onto the shared streams.
type Writer struct {
	client       *goredis.Client
	tickMaxLen   int64
	candleMaxLen int64
}

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	cfg.defaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{
		client:       client,
		tickMaxLen:   cfg.TickMaxLen,
		candleMaxLen: cfg.CandleMaxLen,
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// PublishTick appends one LTP print to the tick stream as flat fields.
func (w *Writer) PublishTick(ctx context.Context, t model.Tick) error {
	epoch := float64(t.TS.UnixNano()) / 1e9
	return w.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: TickStream,
		MaxLen: w.tickMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"symbol": t.Symbol,
			"ltp":    t.LTP,
			"ts":     epoch,
		},
	}).Err()
}

// PublishCandle appends one closed minute bar to the candle stream as a
// single JSON "data" field.
func (w *Writer) PublishCandle(ctx context.Context, c model.Candle) error {
	return w.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: CandleStream,
		MaxLen: w.candleMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(c.JSON()),
		},
	}).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
