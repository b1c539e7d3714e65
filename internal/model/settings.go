package model

// Settings is the strategy risk configuration. It is written by the dashboard
// and read here as a snapshot at process start; changing it requires a worker
// restart.
type Settings struct {
	MaxTradesPerDay    int
	MaxTradesPerSymbol int
	RiskPerTradeAmount float64
	RiskRewardRatio    float64
	BreakevenTriggerR  float64
	VolumeThreshold    int64 // minimum candle turnover in rupees
}

// DefaultSettings mirrors the seeded settings row and is used when the table
// is empty (fresh environment).
func DefaultSettings() Settings {
	return Settings{
		MaxTradesPerDay:    10,
		MaxTradesPerSymbol: 2,
		RiskPerTradeAmount: 500,
		RiskRewardRatio:    2.5,
		BreakevenTriggerR:  1.25,
		VolumeThreshold:    10_000_000,
	}
}
