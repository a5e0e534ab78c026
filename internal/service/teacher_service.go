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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	ListAssignments(ctx context.Context, teacherID string) ([]models.SubjectAssignment, error)
	ReplaceAssignments(ctx context.Context, teacherID string, assignments []models.SubjectAssignment) error
}

// CreateTeacherRequest captures fields for creating teachers.
type CreateTeacherRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone"`
	Initials *string `json:"initials"`
}

// UpdateTeacherRequest modifies teacher fields.
type UpdateTeacherRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	FullName string  `json:"full_name" validate:"required"`
	Phone    *string `json:"phone"`
	Initials *string `json:"initials"`
	Active   bool    `json:"active"`
}

// AssignmentRequest is one subject-in-class teaching assignment.
type AssignmentRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// TeacherService handles teacher records and their teaching assignments.
type TeacherService struct {
	repo      teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService creates a new teacher service.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated teachers.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a teacher by identifier.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create adds a new teacher record.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher := &models.Teacher{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: strings.TrimSpace(req.FullName),
		Phone:    req.Phone,
		Initials: req.Initials,
		Active:   true,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	teacher.Email = strings.ToLower(strings.TrimSpace(req.Email))
	teacher.FullName = strings.TrimSpace(req.FullName)
	teacher.Phone = req.Phone
	teacher.Initials = req.Initials
	teacher.Active = req.Active
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Assignments returns a teacher's subject assignments.
func (s *TeacherService) Assignments(ctx context.Context, teacherID string) ([]models.SubjectAssignment, error) {
	if _, err := s.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ReplaceAssignments overwrites a teacher's assignments with the given
// set, dropping duplicates within the payload.
func (s *TeacherService) ReplaceAssignments(ctx context.Context, teacherID string, reqs []AssignmentRequest) ([]models.SubjectAssignment, error) {
	if _, err := s.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(reqs))
	assignments := make([]models.SubjectAssignment, 0, len(reqs))
	for _, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
		}
		dedupe := req.SubjectID + "|" + req.ClassID
		if seen[dedupe] {
			continue
		}
		seen[dedupe] = true
		assignments = append(assignments, models.SubjectAssignment{TeacherID: teacherID, SubjectID: req.SubjectID, ClassID: req.ClassID})
	}
	if err := s.repo.ReplaceAssignments(ctx, teacherID, assignments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace assignments")
	}
	return s.Assignments(ctx, teacherID)
}
