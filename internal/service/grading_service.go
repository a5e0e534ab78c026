package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type gradingPolicyRepo interface {
	List(ctx context.Context) ([]models.GradingPolicy, error)
	FindByID(ctx context.Context, id string) (*models.GradingPolicy, error)
	FindDefault(ctx context.Context) (*models.GradingPolicy, error)
	Save(ctx context.Context, policy *models.GradingPolicy) error
	Delete(ctx context.Context, id string) error
}

// GradeUngraded is returned when a score falls outside every scale band.
const GradeUngraded = "Ungraded"

// GradeNotAvailable is returned when no grade can be computed at all:
// missing score, empty scale, or unusable max marks.
const GradeNotAvailable = "N/A"

// ResolveGrade maps a raw score to a grade symbol using a percentage
// scale. The first item whose inclusive range contains the percentage
// wins; item order is the tie-break for overlapping ranges.
func ResolveGrade(score *float64, maxMarks float64, scale []models.GradingScaleItem) string {
	if score == nil || maxMarks <= 0 || len(scale) == 0 {
		return GradeNotAvailable
	}
	percent := *score / maxMarks * 100
	for _, item := range scale {
		if percent >= item.MinScore && percent <= item.MaxScore {
			return item.Grade
		}
	}
	return GradeUngraded
}

// ScaleItemRequest is one band of a grading scale payload.
type ScaleItemRequest struct {
	Grade    string  `json:"grade" validate:"required"`
	MinScore float64 `json:"min_score" validate:"min=0,max=100"`
	MaxScore float64 `json:"max_score" validate:"min=0,max=100"`
}

// SavePolicyRequest creates or replaces a grading policy.
type SavePolicyRequest struct {
	ID        string             `json:"id"`
	Name      string             `json:"name" validate:"required"`
	IsDefault bool               `json:"is_default"`
	Items     []ScaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// GradingService manages grading policies and score-to-grade resolution.
type GradingService struct {
	policies  gradingPolicyRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradingService constructs GradingService.
func NewGradingService(policies gradingPolicyRepo, validate *validator.Validate, logger *zap.Logger) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{policies: policies, validator: validate, logger: logger}
}

// List returns all grading policies with their scale items.
func (s *GradingService) List(ctx context.Context) ([]models.GradingPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grading policies")
	}
	return policies, nil
}

// Get returns one policy by id.
func (s *GradingService) Get(ctx context.Context, id string) (*models.GradingPolicy, error) {
	policy, err := s.policies.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grading policy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading policy")
	}
	return policy, nil
}

// ActiveScale resolves the scale for an exam: the exam's own policy when
// set, otherwise the school default. A missing default yields an empty
// scale, which downstream resolves every score to N/A.
func (s *GradingService) ActiveScale(ctx context.Context, exam *models.Exam) ([]models.GradingScaleItem, error) {
	if exam != nil && exam.GradingPolicyID != nil && *exam.GradingPolicyID != "" {
		policy, err := s.policies.FindByID(ctx, *exam.GradingPolicyID)
		if err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam grading policy")
		}
		if policy != nil {
			return policy.Items, nil
		}
		s.logger.Warn("exam references missing grading policy", zap.String("policy_id", *exam.GradingPolicyID))
	}
	policy, err := s.policies.FindDefault(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load default grading policy")
	}
	return policy.Items, nil
}

// Save validates and persists a grading policy.
func (s *GradingService) Save(ctx context.Context, req SavePolicyRequest) (*models.GradingPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading policy payload")
	}
	items := make([]models.GradingScaleItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.MinScore > item.MaxScore {
			return nil, appErrors.Clone(appErrors.ErrInvalidScale, fmt.Sprintf("item %d: min score %.1f exceeds max score %.1f", i+1, item.MinScore, item.MaxScore))
		}
		items = append(items, models.GradingScaleItem{Grade: item.Grade, MinScore: item.MinScore, MaxScore: item.MaxScore, Position: i})
	}
	policy := &models.GradingPolicy{ID: req.ID, Name: req.Name, IsDefault: req.IsDefault, Items: items}
	if err := s.policies.Save(ctx, policy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grading policy")
	}
	return policy, nil
}

// Delete removes a grading policy.
func (s *GradingService) Delete(ctx context.Context, id string) error {
	policy, err := s.policies.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grading policy not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grading policy")
	}
	if policy.IsDefault {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete the default grading policy")
	}
	if err := s.policies.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grading policy")
	}
	return nil
}
