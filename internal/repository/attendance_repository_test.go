package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulepro/shulepro-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.AttendanceRecord{
		ClassID:   "c1",
		TeacherID: "t1",
		Date:      date,
		Entries:   []models.AttendanceEntry{{StudentID: "a", Status: models.AttendancePresent}},
	}
	require.NoError(t, repo.Upsert(context.Background(), record))
	// The conflict clause can resolve to a pre-existing record id.
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, "rec-1", record.Entries[0].RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindByClassAndDate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "class_id", "teacher_id", "date", "updated_at"}).
		AddRow("rec-1", "c1", "t1", date, time.Now())
	mock.ExpectQuery("SELECT (.+) FROM attendance_records WHERE class_id = ").
		WithArgs("c1", date).
		WillReturnRows(rows)
	entryRows := sqlmock.NewRows([]string{"id", "record_id", "student_id", "status"}).
		AddRow("en-1", "rec-1", "a", "PRESENT").
		AddRow("en-2", "rec-1", "b", "ABSENT")
	mock.ExpectQuery("SELECT (.+) FROM attendance_entries WHERE record_id = ").
		WithArgs("rec-1").
		WillReturnRows(entryRows)

	record, err := repo.FindByClassAndDate(context.Background(), "c1", date)
	require.NoError(t, err)
	require.Len(t, record.Entries, 2)
	assert.Equal(t, models.AttendanceAbsent, record.Entries[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentSummary(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("PRESENT", 18).
		AddRow("LATE", 1)
	mock.ExpectQuery(regexp.QuoteMeta("r.date BETWEEN $2 AND $3")).
		WithArgs("a", from, to).
		WillReturnRows(rows)

	summary, err := repo.StudentSummary(context.Background(), "a", from, to)
	require.NoError(t, err)
	assert.Equal(t, 18, summary[models.AttendancePresent])
	assert.Equal(t, 1, summary[models.AttendanceLate])
	assert.NoError(t, mock.ExpectationsWereMet())
}
