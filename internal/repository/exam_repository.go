package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// ExamRepository handles exam persistence.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates a new exam repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, name, term_id, max_marks, class_id, subject_id, teacher_id, stream, marks_deadline, grading_policy_id, created_at, updated_at`

// ListByTerm returns every exam scheduled in a term.
func (r *ExamRepository) ListByTerm(ctx context.Context, termID string) ([]models.Exam, error) {
	var exams []models.Exam
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE term_id = $1 ORDER BY created_at ASC`, examColumns)
	if err := r.db.SelectContext(ctx, &exams, query, termID); err != nil {
		return nil, fmt.Errorf("list exams by term: %w", err)
	}
	return exams, nil
}

// FindByID returns one exam.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	var exam models.Exam
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE id = $1`, examColumns)
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Create inserts an exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, name, term_id, max_marks, class_id, subject_id, teacher_id, stream, marks_deadline, grading_policy_id, created_at, updated_at)
        VALUES (:id, :name, :term_id, :max_marks, :class_id, :subject_id, :teacher_id, :stream, :marks_deadline, :grading_policy_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update rewrites mutable exam fields.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET name = :name, term_id = :term_id, max_marks = :max_marks,
        class_id = :class_id, subject_id = :subject_id, teacher_id = :teacher_id, stream = :stream,
        marks_deadline = :marks_deadline, grading_policy_id = :grading_policy_id, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// Delete removes an exam.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}
