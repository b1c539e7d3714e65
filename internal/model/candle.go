package model

import (
	"encoding/json"
	"time"
)

// Candle is a closed one-minute OHLCV bar for a single symbol.
// Volume is the number of shares traded within the minute, derived from the
// broker's cumulative day volume.
type Candle struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	TS     time.Time `json:"ts"` // bucket start, minute-aligned
}

// Turnover returns the traded value of the bar in rupees.
func (c *Candle) Turnover() float64 {
	return float64(c.Volume) * c.Close
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(*c)
	return b
}

// UnmarshalJSON accepts both offset-qualified (RFC 3339) and naive local
// timestamps in the ts field, so candles published by non-Go producers on the
// shared stream still parse.
func (c *Candle) UnmarshalJSON(b []byte) error {
	var w struct {
		Symbol string  `json:"symbol"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
		TS     string  `json:"ts"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := ParseISOTime(w.TS)
	if err != nil {
		return err
	}
	*c = Candle{
		Symbol: w.Symbol,
		Open:   w.Open,
		High:   w.High,
		Low:    w.Low,
		Close:  w.Close,
		Volume: w.Volume,
		TS:     ts,
	}
	return nil
}

// ParseISOTime parses an ISO-8601 timestamp from a stream payload. Producers
// written against other runtimes emit naive local timestamps without an
// offset; those are interpreted as IST.
func ParseISOTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, ist)
}

var ist = time.FixedZone("IST", 5*3600+1800)
