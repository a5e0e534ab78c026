package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// SettingsRepository handles the singleton general-settings row.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row. The migration seeds the singleton, so a
// missing row surfaces as sql.ErrNoRows and is treated as unconfigured.
func (r *SettingsRepository) Get(ctx context.Context) (*models.GeneralSettings, error) {
	var settings models.GeneralSettings
	const query = `SELECT id, school_name, motto, current_term_id, next_term_begin, updated_at FROM general_settings WHERE id = 1`
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Update rewrites the singleton row.
func (r *SettingsRepository) Update(ctx context.Context, settings *models.GeneralSettings) error {
	settings.ID = 1
	settings.UpdatedAt = time.Now().UTC()
	const query = `UPDATE general_settings SET school_name = :school_name, motto = :motto,
        current_term_id = :current_term_id, next_term_begin = :next_term_begin, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
