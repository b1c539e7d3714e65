package model

import "time"

// Tick is a single LTP print for one symbol, as published on the tick stream.
// Prices are rupees as delivered by the broker feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	LTP    float64   `json:"ltp"`
	TS     time.Time `json:"ts"` // local wall-clock receive time
}
