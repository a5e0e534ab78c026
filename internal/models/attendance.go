package models

import "time"

// AttendanceStatus enumerates register states.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

// Valid reports whether the status is a known value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// AttendanceEntry records one student's status for the day.
type AttendanceEntry struct {
	ID        string           `db:"id" json:"id,omitempty"`
	RecordID  string           `db:"record_id" json:"-"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
}

// AttendanceRecord is the register for one class on one calendar date.
// Uniqueness on (class_id, date) is the invariant; resubmission merges
// into the existing record rather than appending a second one.
type AttendanceRecord struct {
	ID        string            `db:"id" json:"id"`
	ClassID   string            `db:"class_id" json:"class_id"`
	TeacherID string            `db:"teacher_id" json:"teacher_id"`
	Date      time.Time         `db:"date" json:"date"`
	Entries   []AttendanceEntry `json:"entries"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}
