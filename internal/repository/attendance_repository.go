package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// AttendanceRepository handles the daily class register.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindByClassAndDate returns the register for a class on a date, entries
// included.
func (r *AttendanceRepository) FindByClassAndDate(ctx context.Context, classID string, date time.Time) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	const query = `SELECT id, class_id, teacher_id, date, updated_at FROM attendance_records WHERE class_id = $1 AND date = $2`
	if err := r.db.GetContext(ctx, &record, query, classID, date); err != nil {
		return nil, err
	}
	var entries []models.AttendanceEntry
	const entryQuery = `SELECT id, record_id, student_id, status FROM attendance_entries WHERE record_id = $1 ORDER BY student_id ASC`
	if err := r.db.SelectContext(ctx, &entries, entryQuery, record.ID); err != nil {
		return nil, fmt.Errorf("load attendance entries: %w", err)
	}
	record.Entries = entries
	return &record, nil
}

// Upsert merges a register into the at-most-one record per (class, date).
// The record row is upserted on its composite key and each entry is
// upserted per student, so resubmission replaces listed students' statuses
// and leaves unlisted students untouched.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.UpdatedAt = time.Now().UTC()

	const upsertRecord = `INSERT INTO attendance_records (id, class_id, teacher_id, date, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (class_id, date)
        DO UPDATE SET teacher_id = EXCLUDED.teacher_id, updated_at = EXCLUDED.updated_at
        RETURNING id`
	var recordID string
	if err := tx.QueryRowxContext(ctx, upsertRecord, record.ID, record.ClassID, record.TeacherID, record.Date, record.UpdatedAt).Scan(&recordID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	record.ID = recordID

	const upsertEntry = `INSERT INTO attendance_entries (id, record_id, student_id, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (record_id, student_id)
        DO UPDATE SET status = EXCLUDED.status`
	for i := range record.Entries {
		record.Entries[i].RecordID = recordID
		if record.Entries[i].ID == "" {
			record.Entries[i].ID = uuid.NewString()
		}
		entry := record.Entries[i]
		if _, err := tx.ExecContext(ctx, upsertEntry, entry.ID, entry.RecordID, entry.StudentID, entry.Status); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("upsert attendance entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance: %w", err)
	}
	return nil
}

// StudentSummary counts a student's statuses between two dates.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID string, from, to time.Time) (map[models.AttendanceStatus]int, error) {
	const query = `SELECT e.status, COUNT(*) AS total
        FROM attendance_entries e
        JOIN attendance_records r ON r.id = e.record_id
        WHERE e.student_id = $1 AND r.date BETWEEN $2 AND $3
        GROUP BY e.status`
	rows, err := r.db.QueryxContext(ctx, query, studentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("student attendance summary: %w", err)
	}
	defer rows.Close()
	summary := make(map[models.AttendanceStatus]int)
	for rows.Next() {
		var status models.AttendanceStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan attendance summary: %w", err)
		}
		summary[status] = total
	}
	return summary, rows.Err()
}
