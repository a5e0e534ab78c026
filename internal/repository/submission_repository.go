package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shulepro/shulepro-api/internal/models"
)

// ErrDuplicateSubmission is returned when a teacher already holds a
// non-Rejected submission for the assessment key.
var ErrDuplicateSubmission = errors.New("active submission already exists for assessment")

// SubmissionRepository handles mark submission persistence.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new submission repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, teacher_id, exam_id, class_id, subject_id, assessment_name, student_count, average_score, dos_status, reject_reason, reviewed_by, reviewed_at, anomalies, submitted_at`

// Create persists the submission and its entries in one transaction. The
// partial unique index on (teacher_id, exam_id, class_id, subject_id)
// WHERE dos_status <> 'REJECTED' enforces the one-active-record policy.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.MarkSubmission) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	if submission.Anomalies == nil {
		submission.Anomalies = models.AnomalyList{}
	}

	const insert = `INSERT INTO mark_submissions (id, teacher_id, exam_id, class_id, subject_id, assessment_name, student_count, average_score, dos_status, reject_reason, reviewed_by, reviewed_at, anomalies, submitted_at)
        VALUES (:id, :teacher_id, :exam_id, :class_id, :subject_id, :assessment_name, :student_count, :average_score, :dos_status, :reject_reason, :reviewed_by, :reviewed_at, :anomalies, :submitted_at)`
	if _, err := tx.NamedExecContext(ctx, insert, submission); err != nil {
		tx.Rollback() //nolint:errcheck
		if isUniqueViolation(err) {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	const insertEntry = `INSERT INTO mark_submission_entries (id, submission_id, student_id, score)
        VALUES (:id, :submission_id, :student_id, :score)`
	for i := range submission.Entries {
		submission.Entries[i].SubmissionID = submission.ID
		if submission.Entries[i].ID == "" {
			submission.Entries[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, insertEntry, submission.Entries[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert submission entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

// FindByID returns one submission with its entries.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.MarkSubmission, error) {
	var submission models.MarkSubmission
	query := fmt.Sprintf(`SELECT %s FROM mark_submissions WHERE id = $1`, submissionColumns)
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	var entries []models.MarkEntry
	const entryQuery = `SELECT id, submission_id, student_id, score FROM mark_submission_entries WHERE submission_id = $1 ORDER BY student_id ASC`
	if err := r.db.SelectContext(ctx, &entries, entryQuery, id); err != nil {
		return nil, fmt.Errorf("load submission entries: %w", err)
	}
	submission.Entries = entries
	return &submission, nil
}

// List returns submissions matching the filter, newest first.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.MarkSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM mark_submissions s WHERE 1=1`, prefixColumns("s", submissionColumns))
	var args []interface{}
	if filter.TeacherID != "" {
		query += fmt.Sprintf(" AND s.teacher_id = $%d", len(args)+1)
		args = append(args, filter.TeacherID)
	}
	if filter.ExamID != "" {
		query += fmt.Sprintf(" AND s.exam_id = $%d", len(args)+1)
		args = append(args, filter.ExamID)
	}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND s.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND s.subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND s.dos_status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.TermID != "" {
		query += fmt.Sprintf(" AND s.exam_id IN (SELECT id FROM exams WHERE term_id = $%d)", len(args)+1)
		args = append(args, filter.TermID)
	}
	query += " ORDER BY s.submitted_at DESC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
	}
	var submissions []models.MarkSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// ListActiveKeys returns the assessment keys of a teacher's non-Rejected
// submissions in a term. Rejected submissions are excluded so their
// obligations re-open.
func (r *SubmissionRepository) ListActiveKeys(ctx context.Context, teacherID, termID string) ([]models.AssessmentKey, error) {
	const query = `SELECT s.exam_id, s.class_id, s.subject_id
        FROM mark_submissions s
        JOIN exams e ON e.id = s.exam_id
        WHERE s.teacher_id = $1 AND e.term_id = $2 AND s.dos_status <> $3`
	var keys []models.AssessmentKey
	rows, err := r.db.QueryxContext(ctx, query, teacherID, termID, models.DOSStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key models.AssessmentKey
		if err := rows.Scan(&key.ExamID, &key.ClassID, &key.SubjectID); err != nil {
			return nil, fmt.Errorf("scan active key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListApprovedByClassTerm returns approved submissions for a class in a
// term, entries included, for batch aggregation.
func (r *SubmissionRepository) ListApprovedByClassTerm(ctx context.Context, classID, termID string) ([]models.MarkSubmission, error) {
	submissions, err := r.List(ctx, models.SubmissionFilter{ClassID: classID, TermID: termID, Status: models.DOSStatusApproved})
	if err != nil {
		return nil, err
	}
	for i := range submissions {
		full, err := r.FindByID(ctx, submissions[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load entries for %s: %w", submissions[i].ID, err)
		}
		submissions[i].Entries = full.Entries
	}
	return submissions, nil
}

// UpdateReviewParams carries a review transition.
type UpdateReviewParams struct {
	Status       models.DOSStatus
	ReviewedBy   string
	RejectReason *string
	ReviewedAt   time.Time
}

// UpdateReview applies a Pending -> Approved|Rejected transition. The
// WHERE clause guards terminality: reviewing an already-reviewed record
// affects zero rows and reports sql.ErrNoRows.
func (r *SubmissionRepository) UpdateReview(ctx context.Context, id string, params UpdateReviewParams) error {
	const query = `UPDATE mark_submissions
        SET dos_status = $1, reviewed_by = $2, reject_reason = $3, reviewed_at = $4
        WHERE id = $5 AND dos_status = $6`
	result, err := r.db.ExecContext(ctx, query, params.Status, params.ReviewedBy, params.RejectReason, params.ReviewedAt, id, models.DOSStatusPending)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func prefixColumns(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = prefix + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
