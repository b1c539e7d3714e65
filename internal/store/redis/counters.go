package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// counterTTL keeps counters alive for one day; expiry guarantees yesterday's
// counts never leak into today even if a date boundary is crossed mid-session.
const counterTTL = 86400

// reserveScript checks both caps and increments both counters in one atomic
// server-side step. Returns -1 when the global cap is hit, -2 for the symbol
// cap, 1 when the slot was reserved.
var reserveScript = goredis.NewScript(`
local g = tonumber(redis.call('GET', KEYS[1]) or '0')
if g >= tonumber(ARGV[1]) then
  return -1
end
local s = tonumber(redis.call('GET', KEYS[2]) or '0')
if s >= tonumber(ARGV[2]) then
  return -2
end
redis.call('INCR', KEYS[1])
redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`)

// rollbackScript undoes a reservation after a failed placement, flooring both
// counters at zero so repeated rollbacks can never go negative.
var rollbackScript = goredis.NewScript(`
for i = 1, 2 do
  local v = tonumber(redis.call('GET', KEYS[i]) or '0')
  if v > 0 then
    redis.call('DECR', KEYS[i])
  end
end
return 1
`)

// TradeCounters enforces the per-day and per-symbol trade caps atomically
// across all worker processes sharing the Redis instance.
type TradeCounters struct {
	client *goredis.Client
	now    func() time.Time // overridable in tests
}

// NewTradeCounters wraps an existing client (typically the Reader's).
func NewTradeCounters(client *goredis.Client) *TradeCounters {
	return &TradeCounters{client: client, now: time.Now}
}

var _ model.LimitGate = (*TradeCounters)(nil)

// keys derives today's counter keys in trading-date (IST) terms.
func (tc *TradeCounters) keys(symbol string) (global, sym string) {
	date := markethours.TradingDate(tc.now())
	return dailyCountPrefix + date, symbolCountPrefix + date + ":" + symbol
}

// Reserve atomically claims one trade slot for symbol, or reports which cap
// blocked it. The cache counters are authoritative at trigger time.
func (tc *TradeCounters) Reserve(ctx context.Context, symbol string, globalLimit, symbolLimit int) (model.LimitVerdict, error) {
	globalKey, symbolKey := tc.keys(symbol)
	n, err := reserveScript.Run(ctx, tc.client,
		[]string{globalKey, symbolKey},
		globalLimit, symbolLimit, counterTTL,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reserve counters: %w", err)
	}
	switch model.LimitVerdict(n) {
	case model.LimitAllowed, model.LimitGlobalHit, model.LimitSymbolHit:
		return model.LimitVerdict(n), nil
	default:
		return 0, fmt.Errorf("reserve counters: unexpected verdict %d", n)
	}
}

// Rollback releases a previously reserved slot after a failed placement.
func (tc *TradeCounters) Rollback(ctx context.Context, symbol string) error {
	globalKey, symbolKey := tc.keys(symbol)
	if err := rollbackScript.Run(ctx, tc.client, []string{globalKey, symbolKey}).Err(); err != nil {
		return fmt.Errorf("rollback counters: %w", err)
	}
	return nil
}

// Counts reports the current counter values for logging. Missing keys read
// as zero.
func (tc *TradeCounters) Counts(ctx context.Context, symbol string) (global, sym int64, err error) {
	globalKey, symbolKey := tc.keys(symbol)
	vals, err := tc.client.MGet(ctx, globalKey, symbolKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read counters: %w", err)
	}
	parse := func(v interface{}) int64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	return parse(vals[0]), parse(vals[1]), nil
}
