package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// ClassRepository handles class persistence.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns all classes ordered by level and name.
func (r *ClassRepository) List(ctx context.Context) ([]models.ClassInfo, error) {
	var classes []models.ClassInfo
	const query = `SELECT id, name, level, stream, class_teacher_id, created_at, updated_at FROM classes ORDER BY level ASC, name ASC`
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID returns one class.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassInfo, error) {
	var class models.ClassInfo
	const query = `SELECT id, name, level, stream, class_teacher_id, created_at, updated_at FROM classes WHERE id = $1`
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByClassTeacher returns classes where the teacher is class teacher.
func (r *ClassRepository) ListByClassTeacher(ctx context.Context, teacherID string) ([]models.ClassInfo, error) {
	var classes []models.ClassInfo
	const query = `SELECT id, name, level, stream, class_teacher_id, created_at, updated_at FROM classes WHERE class_teacher_id = $1`
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes by class teacher: %w", err)
	}
	return classes, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassInfo) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, stream, class_teacher_id, created_at, updated_at)
        VALUES (:id, :name, :level, :stream, :class_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update rewrites mutable class fields, including the class-teacher
// designation.
func (r *ClassRepository) Update(ctx context.Context, class *models.ClassInfo) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, level = :level, stream = :stream,
        class_teacher_id = :class_teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
