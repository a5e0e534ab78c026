package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// TeacherRepository handles teacher and subject-assignment persistence.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository creates a new teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching the filter with a total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	query := `SELECT id, email, full_name, phone, initials, active, created_at, updated_at FROM teachers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM teachers WHERE 1=1`
	var args []interface{}
	if filter.Search != "" {
		clause := fmt.Sprintf(" AND (full_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1)
		query += clause
		countQuery += clause
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		clause := fmt.Sprintf(" AND active = $%d", len(args)+1)
		query += clause
		countQuery += clause
		args = append(args, *filter.Active)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	query += " ORDER BY full_name ASC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID returns one teacher.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	const query = `SELECT id, email, full_name, phone, initials, active, created_at, updated_at FROM teachers WHERE id = $1`
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, email, full_name, phone, initials, active, created_at, updated_at)
        VALUES (:id, :email, :full_name, :phone, :initials, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update rewrites mutable teacher fields.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET email = :email, full_name = :full_name, phone = :phone,
        initials = :initials, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// ListAssignments returns a teacher's subject assignments.
func (r *TeacherRepository) ListAssignments(ctx context.Context, teacherID string) ([]models.SubjectAssignment, error) {
	var assignments []models.SubjectAssignment
	const query = `SELECT id, teacher_id, subject_id, class_id, created_at FROM subject_assignments WHERE teacher_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListAssignmentsByClass returns every teacher's assignment touching a
// class. The responsibility calculation derives subjects-taught-in-class
// from this, never from a denormalized column.
func (r *TeacherRepository) ListAssignmentsByClass(ctx context.Context, classID string) ([]models.SubjectAssignment, error) {
	var assignments []models.SubjectAssignment
	const query = `SELECT id, teacher_id, subject_id, class_id, created_at FROM subject_assignments WHERE class_id = $1`
	if err := r.db.SelectContext(ctx, &assignments, query, classID); err != nil {
		return nil, fmt.Errorf("list class assignments: %w", err)
	}
	return assignments, nil
}

// ReplaceAssignments swaps a teacher's assignment set in one transaction.
func (r *TeacherRepository) ReplaceAssignments(ctx context.Context, teacherID string, assignments []models.SubjectAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subject_assignments WHERE teacher_id = $1`, teacherID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear assignments: %w", err)
	}
	const query = `INSERT INTO subject_assignments (id, teacher_id, subject_id, class_id, created_at)
        VALUES (:id, :teacher_id, :subject_id, :class_id, :created_at)`
	for i := range assignments {
		assignments[i].TeacherID = teacherID
		if assignments[i].ID == "" {
			assignments[i].ID = uuid.NewString()
		}
		if assignments[i].CreatedAt.IsZero() {
			assignments[i].CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, assignments[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignments: %w", err)
	}
	return nil
}
