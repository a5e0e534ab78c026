package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type examRepository interface {
	ListByTerm(ctx context.Context, termID string) ([]models.Exam, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

// SaveExamRequest captures fields for creating or updating exams. The
// scope fields are optional: an unscoped exam applies everywhere.
type SaveExamRequest struct {
	Name            string  `json:"name" validate:"required"`
	TermID          string  `json:"term_id" validate:"required"`
	MaxMarks        float64 `json:"max_marks" validate:"required,gt=0"`
	ClassID         *string `json:"class_id"`
	SubjectID       *string `json:"subject_id"`
	TeacherID       *string `json:"teacher_id"`
	Stream          *string `json:"stream"`
	MarksDeadline   *string `json:"marks_deadline"`
	GradingPolicyID *string `json:"grading_policy_id"`
}

// ExamService handles assessment events.
type ExamService struct {
	repo      examRepository
	terms     termReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService creates a new exam service.
func NewExamService(repo examRepository, terms termReader, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, terms: terms, validator: validate, logger: logger}
}

// ListByTerm returns a term's exams.
func (s *ExamService) ListByTerm(ctx context.Context, termID string) ([]models.Exam, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "term required")
	}
	exams, err := s.repo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, nil
}

// Get returns an exam by identifier.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Create adds a new exam to a term.
func (s *ExamService) Create(ctx context.Context, req SaveExamRequest) (*models.Exam, error) {
	exam, err := s.buildExam(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	return exam, nil
}

// Update modifies an existing exam.
func (s *ExamService) Update(ctx context.Context, id string, req SaveExamRequest) (*models.Exam, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	exam, err := s.buildExam(ctx, req)
	if err != nil {
		return nil, err
	}
	exam.ID = id
	if err := s.repo.Update(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}
	return exam, nil
}

// Delete removes an exam.
func (s *ExamService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	return nil
}

func (s *ExamService) buildExam(ctx context.Context, req SaveExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	exam := &models.Exam{
		Name:            req.Name,
		TermID:          req.TermID,
		MaxMarks:        req.MaxMarks,
		ClassID:         req.ClassID,
		SubjectID:       req.SubjectID,
		TeacherID:       req.TeacherID,
		Stream:          req.Stream,
		GradingPolicyID: req.GradingPolicyID,
	}
	if req.MarksDeadline != nil && *req.MarksDeadline != "" {
		deadline, err := time.Parse("2006-01-02", *req.MarksDeadline)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "marks_deadline must be YYYY-MM-DD")
		}
		exam.MarksDeadline = &deadline
	}
	return exam, nil
}
