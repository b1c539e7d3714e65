package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema bootstrap is idempotent so every binary can run it at startup and
// the first one to reach the database wins.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS strategy_settings (
	id                      BIGSERIAL PRIMARY KEY,
	max_trades_per_day      INT              NOT NULL DEFAULT 10,
	max_trades_per_symbol   INT              NOT NULL DEFAULT 2,
	risk_per_trade_amount   DOUBLE PRECISION NOT NULL DEFAULT 500,
	risk_reward_ratio       DOUBLE PRECISION NOT NULL DEFAULT 2.5,
	breakeven_trigger_r     DOUBLE PRECISION NOT NULL DEFAULT 1.25,
	volume_threshold        BIGINT           NOT NULL DEFAULT 10000000,
	is_active               BOOLEAN          NOT NULL DEFAULT TRUE,
	updated_at              TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS broker_credentials (
	id           BIGSERIAL PRIMARY KEY,
	app_id       TEXT        NOT NULL,
	secret_key   TEXT        NOT NULL DEFAULT '',
	access_token TEXT        NOT NULL,
	is_active    BOOLEAN     NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trades (
	id                 BIGSERIAL PRIMARY KEY,
	symbol             TEXT             NOT NULL,
	status             TEXT             NOT NULL DEFAULT 'PENDING',

	candle_ts          TIMESTAMPTZ      NOT NULL,
	candle_open        DOUBLE PRECISION NOT NULL,
	candle_high        DOUBLE PRECISION NOT NULL,
	candle_low         DOUBLE PRECISION NOT NULL,
	candle_close       DOUBLE PRECISION NOT NULL,
	candle_volume      BIGINT           NOT NULL DEFAULT 0,
	prev_day_low       DOUBLE PRECISION NOT NULL,

	entry_level        DOUBLE PRECISION NOT NULL,
	stop_loss          DOUBLE PRECISION NOT NULL,
	target_price       DOUBLE PRECISION NOT NULL,
	quantity           INT              NOT NULL DEFAULT 0,

	entry_order_id     TEXT,
	exit_order_id      TEXT,
	actual_entry_price DOUBLE PRECISION,
	actual_exit_price  DOUBLE PRECISION,

	is_breakeven_moved BOOLEAN          NOT NULL DEFAULT FALSE,
	pnl                DOUBLE PRECISION,
	exit_reason        TEXT,
	created_at         TIMESTAMPTZ      NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
CREATE INDEX IF NOT EXISTS idx_trades_created_at    ON trades (created_at);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_trades_entry_order
	ON trades (entry_order_id) WHERE entry_order_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uniq_trades_exit_order
	ON trades (exit_order_id) WHERE exit_order_id IS NOT NULL;
`

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
