package model

// DayOHLC is one completed daily bar from the history API, cached per symbol
// in the prev_day_ohlc hash. TS is epoch seconds as delivered by the API.
type DayOHLC struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}
