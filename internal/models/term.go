package models

import "time"

// Term models an academic term within the institution calendar. The term
// marked current in GeneralSettings scopes all assessment computation;
// other terms are inert history.
type Term struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Exam is an assessment event scheduled within a term. ClassID, SubjectID,
// TeacherID and Stream, when set, restrict its scope; an exam with none of
// them is general and applies to every responsibility a teacher holds.
type Exam struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	TermID          string     `db:"term_id" json:"term_id"`
	MaxMarks        float64    `db:"max_marks" json:"max_marks"`
	ClassID         *string    `db:"class_id" json:"class_id,omitempty"`
	SubjectID       *string    `db:"subject_id" json:"subject_id,omitempty"`
	TeacherID       *string    `db:"teacher_id" json:"teacher_id,omitempty"`
	Stream          *string    `db:"stream" json:"stream,omitempty"`
	MarksDeadline   *time.Time `db:"marks_deadline" json:"marks_deadline,omitempty"`
	GradingPolicyID *string    `db:"grading_policy_id" json:"grading_policy_id,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// AppliesTo reports whether the exam's scope is compatible with the given
// class and subject. Unset scope fields match anything.
func (e Exam) AppliesTo(classID, subjectID string, stream *string) bool {
	if e.ClassID != nil && *e.ClassID != classID {
		return false
	}
	if e.SubjectID != nil && *e.SubjectID != subjectID {
		return false
	}
	if e.Stream != nil {
		if stream == nil || *e.Stream != *stream {
			return false
		}
	}
	return true
}
