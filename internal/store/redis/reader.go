package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"breakdown-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the stream reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "ALGO_GROUP"
	ConsumerName  string // unique consumer name; defaults to hostname-pid
}

// CandleHandler processes one closed minute bar. A non-nil error leaves the
// message un-ACKed so the PEL reclaimer can retry it.
type CandleHandler func(ctx context.Context, c model.Candle) error

// TickHandler processes one LTP print. Same ACK semantics as CandleHandler.
type TickHandler func(ctx context.Context, t model.Tick) error

// Reader consumes the tick and candle streams through a consumer group and
// subscribes to the token-update channel.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string

	// OnMalformed is called when a payload fails to parse and is ACKed away.
	OnMalformed func(stream string)
}

// NewReader creates a Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	group := cfg.ConsumerGroup
	if group == "" {
		group = DefaultGroup
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// Client returns the underlying Redis client for health checks and for
// sharing the connection with the counter gate.
func (r *Reader) Client() *goredis.Client { return r.client }

// ConsumerName returns the name this reader claims PEL entries under.
func (r *Reader) ConsumerName() string { return r.consumerName }

// EnsureGroups creates the consumer group on both streams if missing.
// The candle group starts at "0" so bars that accumulated while the worker
// was down are still evaluated; the tick group starts at "$" because stale
// ticks are worthless for exit checks.
func (r *Reader) EnsureGroups(ctx context.Context) error {
	for _, sg := range []struct{ stream, start string }{
		{CandleStream, "0"},
		{TickStream, "$"},
	} {
		err := r.client.XGroupCreateMkStream(ctx, sg.stream, r.consumerGroup, sg.start).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", sg.stream, err)
		}
	}
	return nil
}

// Consume reads both streams in a single XREADGROUP loop and dispatches each
// message to the matching handler. Messages are ACKed after the handler
// returns nil; unparseable payloads are ACKed immediately so they cannot
// wedge the group. Returns when ctx is cancelled.
func (r *Reader) Consume(ctx context.Context, onCandle CandleHandler, onTick TickHandler) error {
	args := []string{CandleStream, TickStream, ">", ">"}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				r.dispatch(ctx, stream.Stream, msg, onCandle, onTick)
			}
		}
	}
}

func (r *Reader) dispatch(ctx context.Context, stream string, msg goredis.XMessage, onCandle CandleHandler, onTick TickHandler) {
	var err error
	switch stream {
	case CandleStream:
		var c model.Candle
		c, err = parseCandle(msg.Values)
		if err == nil {
			if herr := onCandle(ctx, c); herr != nil {
				log.Printf("[redis-reader] candle %s handler: %v", msg.ID, herr)
				return // left pending for reclaim
			}
		}
	case TickStream:
		var t model.Tick
		t, err = parseTick(msg.Values)
		if err == nil {
			if herr := onTick(ctx, t); herr != nil {
				log.Printf("[redis-reader] tick %s handler: %v", msg.ID, herr)
				return
			}
		}
	default:
		err = fmt.Errorf("unexpected stream %s", stream)
	}

	if err != nil {
		// ACK malformed messages so they cannot poison the group.
		log.Printf("[redis-reader] dropping %s %s: %v", stream, msg.ID, err)
		if r.OnMalformed != nil {
			r.OnMalformed(stream)
		}
	}
	r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
}

// parseCandle decodes the single JSON "data" field of a candle-stream entry.
func parseCandle(values map[string]interface{}) (model.Candle, error) {
	data, ok := values["data"].(string)
	if !ok {
		return model.Candle{}, fmt.Errorf("candle entry missing data field")
	}
	var c model.Candle
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return model.Candle{}, fmt.Errorf("unmarshal candle: %w", err)
	}
	if c.Symbol == "" {
		return model.Candle{}, fmt.Errorf("candle missing symbol")
	}
	return c, nil
}

// parseTick decodes the flat {symbol, ltp, ts} fields of a tick-stream entry.
// ts is epoch seconds, possibly fractional.
func parseTick(values map[string]interface{}) (model.Tick, error) {
	sym, _ := values["symbol"].(string)
	if sym == "" {
		return model.Tick{}, fmt.Errorf("tick entry missing symbol")
	}
	ltpStr, _ := values["ltp"].(string)
	ltp, err := strconv.ParseFloat(ltpStr, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("tick ltp %q: %w", ltpStr, err)
	}
	tsStr, _ := values["ts"].(string)
	epoch, err := strconv.ParseFloat(tsStr, 64)
	if err != nil {
		return model.Tick{}, fmt.Errorf("tick ts %q: %w", tsStr, err)
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return model.Tick{Symbol: sym, LTP: ltp, TS: time.Unix(sec, nsec)}, nil
}

// ReclaimStaleCandles finds candle-stream PEL entries idle longer than minIdle
// across all consumers in the group and XCLAIMs them for this consumer.
func (r *Reader) ReclaimStaleCandles(ctx context.Context, minIdle time.Duration, batch int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: CandleStream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batch,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   CandleStream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", CandleStream, err)
	}

	log.Printf("[redis-reader] reclaimed %d stale PEL entries from %s", len(claimed), CandleStream)
	return claimed, nil
}

// StartPELReclaimer periodically scans the candle stream for entries a dead
// consumer left behind and replays them through onCandle. Ticks are not
// reclaimed: a stale LTP has no exit-check value. Runs until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, interval, minIdle time.Duration, onCandle CandleHandler, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := r.ReclaimStaleCandles(ctx, minIdle, 50)
			if err != nil {
				log.Printf("[redis-reader] PEL reclaim error: %v", err)
				continue
			}
			replayed := 0
			for _, msg := range claimed {
				c, perr := parseCandle(msg.Values)
				if perr != nil {
					r.client.XAck(ctx, CandleStream, r.consumerGroup, msg.ID)
					continue
				}
				if herr := onCandle(ctx, c); herr != nil {
					log.Printf("[redis-reader] reclaimed candle %s handler: %v", msg.ID, herr)
					continue
				}
				r.client.XAck(ctx, CandleStream, r.consumerGroup, msg.ID)
				replayed++
			}
			if replayed > 0 && onReclaim != nil {
				onReclaim(replayed)
			}
		}
	}
}

// SubscribeTokenUpdates subscribes the client to the token-update channel and
// waits for the subscription confirmation. The caller listens on .Channel()
// and treats any message as a restart signal.
func SubscribeTokenUpdates(ctx context.Context, client *goredis.Client) (*goredis.PubSub, error) {
	pubsub := client.Subscribe(ctx, TokenUpdateChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", TokenUpdateChannel, err)
	}
	return pubsub, nil
}

// SubscribeTokenUpdates subscribes this reader's connection to the
// token-update channel.
func (r *Reader) SubscribeTokenUpdates(ctx context.Context) (*goredis.PubSub, error) {
	return SubscribeTokenUpdates(ctx, r.client)
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (r *Reader) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
