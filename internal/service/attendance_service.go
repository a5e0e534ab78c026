package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type attendanceRepo interface {
	FindByClassAndDate(ctx context.Context, classID string, date time.Time) (*models.AttendanceRecord, error)
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	StudentSummary(ctx context.Context, studentID string, from, to time.Time) (map[models.AttendanceStatus]int, error)
}

type classExistenceReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassInfo, error)
}

// AttendanceEntryRequest is one student's register mark.
type AttendanceEntryRequest struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// RecordAttendanceRequest is a day's register for one class.
type RecordAttendanceRequest struct {
	ClassID string                   `json:"class_id" validate:"required"`
	Date    string                   `json:"date" validate:"required,datetime=2006-01-02"`
	Entries []AttendanceEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService records class registers with merge-on-resubmission
// semantics: one record per class and date, later statuses overwrite
// earlier ones per student.
type AttendanceService struct {
	attendance attendanceRepo
	classes    classExistenceReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(attendance attendanceRepo, classes classExistenceReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, classes: classes, validator: validate, logger: logger}
}

// Record upserts one day's register. Re-recording the same class and
// date merges into the existing record instead of duplicating it.
func (s *AttendanceService) Record(ctx context.Context, teacherID string, req RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	seen := make(map[string]bool, len(req.Entries))
	entries := make([]models.AttendanceEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if !entry.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", entry.Status))
		}
		// Last mark for a student wins within one payload.
		if seen[entry.StudentID] {
			for i := range entries {
				if entries[i].StudentID == entry.StudentID {
					entries[i].Status = entry.Status
				}
			}
			continue
		}
		seen[entry.StudentID] = true
		entries = append(entries, models.AttendanceEntry{StudentID: entry.StudentID, Status: entry.Status})
	}
	record := &models.AttendanceRecord{
		ClassID:   req.ClassID,
		TeacherID: teacherID,
		Date:      date,
		Entries:   entries,
	}
	if err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	return s.GetByClassAndDate(ctx, req.ClassID, req.Date)
}

// GetByClassAndDate returns the register for one class and date.
func (s *AttendanceService) GetByClassAndDate(ctx context.Context, classID, rawDate string) (*models.AttendanceRecord, error) {
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	record, err := s.attendance.FindByClassAndDate(ctx, classID, date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance recorded for this class and date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

// StudentSummary tallies a student's statuses over a date range.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID, rawFrom, rawTo string) (map[models.AttendanceStatus]int, error) {
	from, err := time.Parse("2006-01-02", rawFrom)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", rawTo)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to precedes from")
	}
	summary, err := s.attendance.StudentSummary(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	return summary, nil
}
