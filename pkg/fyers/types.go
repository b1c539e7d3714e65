package fyers

// Order type codes accepted by the orders endpoint.
const (
	OrderTypeLimit  = 1
	OrderTypeMarket = 2
)

// Order sides.
const (
	SideBuy  = 1
	SideSell = -1
)

// OrderRequest is the body of POST /api/v3/orders/sync.
type OrderRequest struct {
	Symbol       string  `json:"symbol"`
	Qty          int     `json:"qty"`
	Type         int     `json:"type"`
	Side         int     `json:"side"`
	ProductType  string  `json:"productType"`
	LimitPrice   float64 `json:"limitPrice"`
	StopPrice    float64 `json:"stopPrice"`
	Validity     string  `json:"validity"`
	DisclosedQty int     `json:"disclosedQty"`
	OfflineOrder bool    `json:"offlineOrder"`
}

// OrderResponse is the placement acknowledgement. s != "ok" is a logical
// rejection even on HTTP 200.
type OrderResponse struct {
	S       string `json:"s"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// HistoryRequest selects daily candles for one symbol. Dates are YYYY-MM-DD
// (the API is called with date_format=1).
type HistoryRequest struct {
	Symbol     string
	Resolution string
	RangeFrom  string
	RangeTo    string
}

// HistoryResponse carries candle rows as [ts, o, h, l, c, v] arrays.
type HistoryResponse struct {
	S       string      `json:"s"`
	Message string      `json:"message"`
	Candles [][]float64 `json:"candles"`
}

// HistoryBar is one decoded daily candle.
type HistoryBar struct {
	TS     int64 // epoch seconds
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Bars decodes the raw candle rows, dropping malformed entries.
func (r *HistoryResponse) Bars() []HistoryBar {
	out := make([]HistoryBar, 0, len(r.Candles))
	for _, row := range r.Candles {
		if len(row) < 6 {
			continue
		}
		out = append(out, HistoryBar{
			TS:     int64(row[0]),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: int64(row[5]),
		})
	}
	return out
}

// TickMessage is one JSON frame on the data socket. Frames without a symbol
// (connection acks, pongs) are skipped by the reader.
type TickMessage struct {
	Type           string  `json:"type,omitempty"`
	Symbol         string  `json:"symbol"`
	LTP            float64 `json:"ltp"`
	VolTradedToday int64   `json:"vol_traded_today"`
}

// OrderEnvelope wraps order socket frames: {"s":"ok","orders":{...}}.
type OrderEnvelope struct {
	S      string      `json:"s"`
	Orders *OrderEvent `json:"orders"`
}

// OrderEvent is the broker's order update payload. Status codes:
// 1 cancelled, 2 traded, 4 transit, 5 rejected, 6 pending.
type OrderEvent struct {
	ID          string  `json:"id"`
	Status      int     `json:"status"`
	TradedPrice float64 `json:"tradedPrice"`
	Qty         int     `json:"qty"`
	Symbol      string  `json:"symbol"`
}
