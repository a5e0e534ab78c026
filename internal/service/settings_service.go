package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.GeneralSettings, error)
	Update(ctx context.Context, settings *models.GeneralSettings) error
}

// UpdateSettingsRequest modifies the singleton school configuration.
type UpdateSettingsRequest struct {
	SchoolName    string  `json:"school_name" validate:"required"`
	Motto         *string `json:"motto"`
	CurrentTermID *string `json:"current_term_id"`
	NextTermBegin *string `json:"next_term_begin"`
}

// SettingsService manages the school's general settings row.
type SettingsService struct {
	repo      settingsRepository
	terms     termReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(repo settingsRepository, terms termReader, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, terms: terms, validator: validate, logger: logger}
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (*models.GeneralSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "settings not initialised")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	return settings, nil
}

// Update replaces the settings, rejecting the template placeholder as a
// school name and verifying the current term exists when set.
func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (*models.GeneralSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	name := strings.TrimSpace(req.SchoolName)
	if name == models.TemplateSchoolName {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school name must be customised")
	}
	if req.CurrentTermID != nil && *req.CurrentTermID != "" {
		if _, err := s.terms.FindByID(ctx, *req.CurrentTermID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "current term not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	}
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	settings.SchoolName = name
	settings.Motto = req.Motto
	settings.CurrentTermID = req.CurrentTermID
	settings.NextTermBegin = req.NextTermBegin
	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}
	return settings, nil
}
