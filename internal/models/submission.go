package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DOSStatus is the review state of a mark submission.
type DOSStatus string

const (
	DOSStatusPending  DOSStatus = "PENDING"
	DOSStatusApproved DOSStatus = "APPROVED"
	DOSStatusRejected DOSStatus = "REJECTED"
)

// Valid reports whether the status is a known value.
func (s DOSStatus) Valid() bool {
	switch s {
	case DOSStatusPending, DOSStatusApproved, DOSStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status ends the review lifecycle.
func (s DOSStatus) Terminal() bool {
	return s == DOSStatusApproved || s == DOSStatusRejected
}

// MarkEntry is one student's score within a submission. A nil score means
// the student was absent or not yet marked.
type MarkEntry struct {
	ID           string   `db:"id" json:"id,omitempty"`
	SubmissionID string   `db:"submission_id" json:"-"`
	StudentID    string   `db:"student_id" json:"student_id"`
	Score        *float64 `db:"score" json:"score"`
}

// Anomaly flags a suspicious entry in a mark batch. StudentID is the
// GENERAL sentinel for batch-level findings.
type Anomaly struct {
	StudentID   string `json:"student_id"`
	Explanation string `json:"explanation"`
}

// AnomalyList is stored as a JSONB column on the submission row.
type AnomalyList []Anomaly

// Value implements driver.Valuer.
func (a AnomalyList) Value() (driver.Value, error) {
	if a == nil {
		a = AnomalyList{}
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AnomalyList) Scan(src interface{}) error {
	if src == nil {
		*a = AnomalyList{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("anomaly list: unsupported source %T", src)
	}
	return json.Unmarshal(raw, a)
}

// MarkSubmission is a teacher's persisted batch of marks for one
// assessment. At most one non-Rejected record exists per teacher and
// assessment key; rejected records remain as history and re-open the
// obligation.
type MarkSubmission struct {
	ID             string      `db:"id" json:"id"`
	TeacherID      string      `db:"teacher_id" json:"teacher_id"`
	ExamID         string      `db:"exam_id" json:"exam_id"`
	ClassID        string      `db:"class_id" json:"class_id"`
	SubjectID      string      `db:"subject_id" json:"subject_id"`
	AssessmentName string      `db:"assessment_name" json:"assessment_name"`
	StudentCount   int         `db:"student_count" json:"student_count"`
	AverageScore   float64     `db:"average_score" json:"average_score"`
	DOSStatus      DOSStatus   `db:"dos_status" json:"dos_status"`
	RejectReason   *string     `db:"reject_reason" json:"reject_reason,omitempty"`
	ReviewedBy     *string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
	Anomalies      AnomalyList `db:"anomalies" json:"anomalies"`
	SubmittedAt    time.Time   `db:"submitted_at" json:"submitted_at"`
	Entries        []MarkEntry `json:"entries,omitempty"`
}

// Key returns the submission's assessment key.
func (s MarkSubmission) Key() AssessmentKey {
	return AssessmentKey{ExamID: s.ExamID, ClassID: s.ClassID, SubjectID: s.SubjectID}
}

// SubmissionFilter scopes submission listings.
type SubmissionFilter struct {
	TeacherID string
	TermID    string
	ExamID    string
	ClassID   string
	SubjectID string
	Status    DOSStatus
	Page      int
	PageSize  int
}

// WithKey scopes the filter to one assessment key.
func (f SubmissionFilter) WithKey(key AssessmentKey) SubmissionFilter {
	f.ExamID = key.ExamID
	f.ClassID = key.ClassID
	f.SubjectID = key.SubjectID
	return f
}
