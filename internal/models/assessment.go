package models

import (
	"fmt"
	"strings"
)

// AssessmentKey uniquely identifies one expected submission: the marks a
// teacher owes for an exam in one class and subject. Struct equality is
// the deduplication rule wherever keys are collected.
type AssessmentKey struct {
	ExamID    string `json:"exam_id"`
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
}

// String renders the legacy composite form examId_classId_subjectId.
func (k AssessmentKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.ExamID, k.ClassID, k.SubjectID)
}

// ParseAssessmentKey parses the composite string form.
func ParseAssessmentKey(raw string) (AssessmentKey, error) {
	parts := strings.Split(raw, "_")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return AssessmentKey{}, fmt.Errorf("malformed assessment key %q", raw)
	}
	return AssessmentKey{ExamID: parts[0], ClassID: parts[1], SubjectID: parts[2]}, nil
}

// Responsibility is one derived assessment obligation with its resolved
// entities attached for presentation.
type Responsibility struct {
	Key     AssessmentKey `json:"key"`
	Exam    Exam          `json:"exam"`
	Class   ClassInfo     `json:"class"`
	Subject Subject       `json:"subject"`
}

// ResponsibilitySet is the output of the responsibility calculation.
// Notice carries the advisory message for the soft-failure states
// (unconfigured settings, invalid teacher identity); it is never an error.
type ResponsibilitySet struct {
	TeacherID string                           `json:"teacher_id"`
	TermID    string                           `json:"term_id,omitempty"`
	Items     map[AssessmentKey]Responsibility `json:"-"`
	Notice    string                           `json:"notice,omitempty"`
}

// List returns the responsibilities as a slice.
func (s ResponsibilitySet) List() []Responsibility {
	out := make([]Responsibility, 0, len(s.Items))
	for _, r := range s.Items {
		out = append(out, r)
	}
	return out
}

// ReconcileResult partitions a responsibility set against submitted keys.
type ReconcileResult struct {
	Pending   []Responsibility `json:"pending"`
	Completed []Responsibility `json:"completed"`
}

// ClassAssessmentSummary aggregates one submission's marks for review and
// report rendering. Average, Highest and Lowest are all zero when no
// non-null scores exist; that is a convention, not an error.
type ClassAssessmentSummary struct {
	Key               AssessmentKey  `json:"key"`
	AssessmentName    string         `json:"assessment_name"`
	StudentCount      int            `json:"student_count"`
	ScoredCount       int            `json:"scored_count"`
	Average           float64        `json:"average"`
	Highest           float64        `json:"highest"`
	Lowest            float64        `json:"lowest"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// SummarySkip records a submission excluded from batch aggregation.
type SummarySkip struct {
	SubmissionID string `json:"submission_id"`
	Reason       string `json:"reason"`
}

// BatchSummaryResult is the partial-success outcome of aggregating many
// submissions: skipped entries are reported, never silently dropped.
type BatchSummaryResult struct {
	Summaries []ClassAssessmentSummary `json:"summaries"`
	Skipped   []SummarySkip            `json:"skipped,omitempty"`
}
