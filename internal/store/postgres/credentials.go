package postgres

import (
	"context"
	"errors"
	"fmt"

	"breakdown-systemv1/internal/model"

	"github.com/jackc/pgx/v5"
)

// ErrNoCredentials means no active broker credential row exists; the auth
// flow has not been completed yet.
var ErrNoCredentials = errors.New("postgres: no active broker credentials")

// ActiveCredentials reads the newest active credential row. Processes call
// this once at startup; a token refresh is delivered by restarting them.
func (s *Store) ActiveCredentials(ctx context.Context) (model.Credentials, error) {
	var c model.Credentials
	err := s.pool.QueryRow(ctx, `
		SELECT app_id, secret_key, access_token, is_active
		FROM broker_credentials
		WHERE is_active AND access_token <> ''
		ORDER BY updated_at DESC
		LIMIT 1`,
	).Scan(&c.AppID, &c.SecretKey, &c.AccessToken, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return model.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return c, nil
}
