// internal/repository/profile_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"glider-device-service/internal/database"
)

type profileRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewProfileRepository creates a postgres backed profile store
func NewProfileRepository(db *database.DB, logger *zap.Logger) ProfileRepository {
	return &profileRepository{
		db:     db,
		logger: logger,
	}
}

func (r *profileRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM profile WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get profile key %s: %w", key, err)
	}
	return value, true, nil
}

func (r *profileRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO profile (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		r.logger.Error("Failed to store profile key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set profile key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (r *profileRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profile WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete profile key %s: %w", key, err)
	}
	return nil
}

func (r *profileRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM profile`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.logger.Error("Failed to scan profile row", zap.Error(err))
			continue
		}
		values[key] = value
	}
	return values, rows.Err()
}
