package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context) ([]models.ClassInfo, error)
	FindByID(ctx context.Context, id string) (*models.ClassInfo, error)
	Create(ctx context.Context, class *models.ClassInfo) error
	Update(ctx context.Context, class *models.ClassInfo) error
	Delete(ctx context.Context, id string) error
}

type classStudentReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// SaveClassRequest captures fields for creating or updating a class.
type SaveClassRequest struct {
	Name           string  `json:"name" validate:"required"`
	Level          string  `json:"level" validate:"required"`
	Stream         *string `json:"stream"`
	ClassTeacherID *string `json:"class_teacher_id"`
}

// ClassService handles class records.
type ClassService struct {
	repo      classRepository
	students  classStudentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a new class service.
func NewClassService(repo classRepository, students classStudentReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, students: students, validator: validate, logger: logger}
}

// List returns all classes.
func (s *ClassService) List(ctx context.Context) ([]models.ClassInfo, error) {
	classes, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Get returns a class by identifier.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassInfo, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Students lists the active students of a class.
func (s *ClassService) Students(ctx context.Context, classID string) ([]models.Student, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Create adds a new class.
func (s *ClassService) Create(ctx context.Context, req SaveClassRequest) (*models.ClassInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.ClassInfo{Name: req.Name, Level: req.Level, Stream: req.Stream, ClassTeacherID: req.ClassTeacherID}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req SaveClassRequest) (*models.ClassInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	class.Name = req.Name
	class.Level = req.Level
	class.Stream = req.Stream
	class.ClassTeacherID = req.ClassTeacherID
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}
