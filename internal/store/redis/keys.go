// Package redis holds the stream, counter, and reference-data access layer
// shared by the data engine, algo worker, reconciler, and OHLC loader.
package redis

// Stream, hash, and channel names are fixed for interop: any producer or
// consumer written against the same Redis instance must agree on these.
const (
	// TickStream carries raw LTP prints as flat fields {symbol, ltp, ts}.
	TickStream = "market_ticks"

	// CandleStream carries closed one-minute bars as a single JSON "data" field.
	CandleStream = "candle_stream_1m"

	// PrevDayKey is the hash of symbol -> JSON daily OHLCV written by the loader.
	PrevDayKey = "prev_day_ohlc"

	// TokenUpdateChannel signals a fresh access token. Payload is ignored;
	// subscribers restart themselves to pick up new credentials.
	TokenUpdateChannel = "fyers_token_update"

	// DefaultGroup is the algo worker's consumer group on both streams.
	DefaultGroup = "ALGO_GROUP"

	dailyCountPrefix  = "daily_count:"
	symbolCountPrefix = "symbol_count:"
)
