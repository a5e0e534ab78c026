package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulepro/shulepro-api/internal/models"
)

// The postgres driver name gives sqlx dollar bindvars, which the named
// insert in Create relies on.
func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func score(v float64) *float64 { return &v }

func TestSubmissionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO mark_submissions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mark_submission_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO mark_submission_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	submission := &models.MarkSubmission{
		TeacherID:      "t1",
		ExamID:         "e1",
		ClassID:        "c1",
		SubjectID:      "s1",
		AssessmentName: "Midterm - Mathematics",
		StudentCount:   2,
		AverageScore:   70,
		DOSStatus:      models.DOSStatusPending,
		Entries: []models.MarkEntry{
			{StudentID: "a", Score: score(80)},
			{StudentID: "b", Score: score(60)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), submission))
	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, submission.ID, submission.Entries[0].SubmissionID)
	assert.False(t, submission.SubmittedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO mark_submissions").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.MarkSubmission{TeacherID: "t1", ExamID: "e1", ClassID: "c1", SubjectID: "s1"})
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "exam_id", "class_id", "subject_id", "assessment_name", "student_count", "average_score", "dos_status", "reject_reason", "reviewed_by", "reviewed_at", "anomalies", "submitted_at"}).
		AddRow("sub-1", "t1", "e1", "c1", "s1", "Midterm - Mathematics", 2, 70.0, "PENDING", nil, nil, nil, []byte(`[]`), now)
	mock.ExpectQuery("SELECT (.+) FROM mark_submissions WHERE id = ").
		WithArgs("sub-1").
		WillReturnRows(rows)
	entryRows := sqlmock.NewRows([]string{"id", "submission_id", "student_id", "score"}).
		AddRow("en-1", "sub-1", "a", 80.0).
		AddRow("en-2", "sub-1", "b", nil)
	mock.ExpectQuery("SELECT (.+) FROM mark_submission_entries WHERE submission_id = ").
		WithArgs("sub-1").
		WillReturnRows(entryRows)

	submission, err := repo.FindByID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.DOSStatusPending, submission.DOSStatus)
	require.Len(t, submission.Entries, 2)
	assert.Nil(t, submission.Entries[1].Score)
	assert.NotNil(t, submission.Anomalies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListActiveKeysExcludesRejected(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"exam_id", "class_id", "subject_id"}).
		AddRow("e1", "c1", "s1")
	mock.ExpectQuery(regexp.QuoteMeta("s.dos_status <> $3")).
		WithArgs("t1", "term-1", models.DOSStatusRejected).
		WillReturnRows(rows)

	keys, err := repo.ListActiveKeys(context.Background(), "t1", "term-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}, keys[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateReview(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	reviewedAt := time.Now()
	mock.ExpectExec("UPDATE mark_submissions").
		WithArgs(models.DOSStatusApproved, "dos-1", nil, reviewedAt, "sub-1", models.DOSStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateReview(context.Background(), "sub-1", UpdateReviewParams{
		Status:     models.DOSStatusApproved,
		ReviewedBy: "dos-1",
		ReviewedAt: reviewedAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateReviewAlreadyReviewed(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec("UPDATE mark_submissions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateReview(context.Background(), "sub-1", UpdateReviewParams{Status: models.DOSStatusRejected, ReviewedBy: "dos-1", ReviewedAt: time.Now()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "exam_id", "class_id", "subject_id", "assessment_name", "student_count", "average_score", "dos_status", "reject_reason", "reviewed_by", "reviewed_at", "anomalies", "submitted_at"}).
		AddRow("sub-1", "t1", "e1", "c1", "s1", "Midterm - Mathematics", 2, 70.0, "APPROVED", nil, nil, nil, []byte(`[]`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("s.teacher_id = $1 AND s.dos_status = $2")).
		WithArgs("t1", models.DOSStatusApproved).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.SubmissionFilter{TeacherID: "t1", Status: models.DOSStatusApproved})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListByAssessmentKey(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "exam_id", "class_id", "subject_id", "assessment_name", "student_count", "average_score", "dos_status", "reject_reason", "reviewed_by", "reviewed_at", "anomalies", "submitted_at"}).
		AddRow("sub-1", "t1", "e1", "c1", "s1", "Midterm - Mathematics", 2, 70.0, "PENDING", nil, nil, nil, []byte(`[]`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("s.exam_id = $1 AND s.class_id = $2 AND s.subject_id = $3")).
		WithArgs("e1", "c1", "s1").
		WillReturnRows(rows)

	filter := models.SubmissionFilter{}.WithKey(models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"})
	list, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
