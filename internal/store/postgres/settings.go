package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"breakdown-systemv1/internal/model"

	"github.com/jackc/pgx/v5"
)

// LoadSettings reads the newest active settings row. A fresh environment with
// no row yet falls back to the seeded defaults rather than failing startup.
func (s *Store) LoadSettings(ctx context.Context) (model.Settings, error) {
	var cfg model.Settings
	err := s.pool.QueryRow(ctx, `
		SELECT max_trades_per_day, max_trades_per_symbol, risk_per_trade_amount,
		       risk_reward_ratio, breakeven_trigger_r, volume_threshold
		FROM strategy_settings
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1`,
	).Scan(
		&cfg.MaxTradesPerDay, &cfg.MaxTradesPerSymbol, &cfg.RiskPerTradeAmount,
		&cfg.RiskRewardRatio, &cfg.BreakevenTriggerR, &cfg.VolumeThreshold,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Printf("[postgres] no active strategy settings, using defaults")
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return cfg, nil
}
