package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
	"github.com/shulepro/shulepro-api/pkg/export"
	"github.com/shulepro/shulepro-api/pkg/jobs"
)

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type classSummarizer interface {
	SummarizeClassTerm(ctx context.Context, classID, termID string) (*models.BatchSummaryResult, error)
}

type approvedSubmissionLister interface {
	ListApprovedByClassTerm(ctx context.Context, classID, termID string) ([]models.MarkSubmission, error)
}

// ReportSubjectLine is one assessment result on a student report card.
type ReportSubjectLine struct {
	AssessmentName string   `json:"assessment_name"`
	SubjectID      string   `json:"subject_id"`
	Score          *float64 `json:"score"`
	MaxMarks       float64  `json:"max_marks"`
	Grade          string   `json:"grade"`
}

// StudentReportCard collects a student's approved results for a term.
type StudentReportCard struct {
	StudentID   string              `json:"student_id"`
	StudentName string              `json:"student_name"`
	ClassID     string              `json:"class_id"`
	TermID      string              `json:"term_id"`
	Lines       []ReportSubjectLine `json:"lines"`
}

// ExportFormat enumerates supported class export renderings.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatPDF  ExportFormat = "pdf"
	FormatXLSX ExportFormat = "xlsx"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	return f == FormatCSV || f == FormatPDF || f == FormatXLSX
}

// ReportJobState is the lifecycle of an async export.
type ReportJobState string

const (
	ReportJobQueued    ReportJobState = "QUEUED"
	ReportJobRunning   ReportJobState = "RUNNING"
	ReportJobCompleted ReportJobState = "COMPLETED"
	ReportJobFailed    ReportJobState = "FAILED"
)

// ReportJobStatus describes one async export job.
type ReportJobStatus struct {
	ID         string         `json:"id"`
	State      ReportJobState `json:"state"`
	FilePath   string         `json:"file_path,omitempty"`
	Error      string         `json:"error,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

type exportJobPayload struct {
	jobID   string
	classID string
	termID  string
	format  ExportFormat
}

// ReportService renders student report cards and class exports. Class
// exports can run synchronously or through the background queue.
type ReportService struct {
	students    studentReader
	classes     classReader
	exams       examReader
	grading     scaleResolver
	submissions approvedSubmissionLister
	summaries   classSummarizer

	csv  *export.CSVExporter
	pdf  *export.PDFExporter
	xlsx *export.XLSXExporter

	storageDir string
	resultTTL  time.Duration
	queue      *jobs.Queue
	logger     *zap.Logger

	mu      sync.RWMutex
	jobInfo map[string]*ReportJobStatus
}

// ReportConfig configures storage and queue behaviour.
type ReportConfig struct {
	StorageDir  string
	Concurrency int
	Retries     int
	ResultTTL   time.Duration
}

// NewReportService constructs ReportService and its export queue. Start
// must be called before async exports are accepted.
func NewReportService(students studentReader, classes classReader, exams examReader, grading scaleResolver, submissions approvedSubmissionLister, summaries classSummarizer, cfg ReportConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = os.TempDir()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	s := &ReportService{
		students:    students,
		classes:     classes,
		exams:       exams,
		grading:     grading,
		submissions: submissions,
		summaries:   summaries,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		xlsx:        export.NewXLSXExporter(),
		storageDir:  cfg.StorageDir,
		resultTTL:   cfg.ResultTTL,
		logger:      logger,
		jobInfo:     make(map[string]*ReportJobStatus),
	}
	s.queue = jobs.NewQueue("class-exports", s.handleExportJob, jobs.QueueConfig{
		Workers:    cfg.Concurrency,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// StudentReportCard assembles a student's approved marks for a term,
// resolving each score against the assessment's grading scale.
func (s *ReportService) StudentReportCard(ctx context.Context, studentID, termID string) (*StudentReportCard, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "term required")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	approved, err := s.submissions.ListApprovedByClassTerm(ctx, student.ClassID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved submissions")
	}
	card := &StudentReportCard{
		StudentID:   student.ID,
		StudentName: student.FullName,
		ClassID:     student.ClassID,
		TermID:      termID,
		Lines:       []ReportSubjectLine{},
	}
	for _, submission := range approved {
		var score *float64
		found := false
		for _, entry := range submission.Entries {
			if entry.StudentID == studentID {
				score = entry.Score
				found = true
				break
			}
		}
		if !found {
			continue
		}
		exam, err := s.exams.FindByID(ctx, submission.ExamID)
		if err != nil {
			s.logger.Warn("report skips submission with missing exam", zap.String("submission_id", submission.ID))
			continue
		}
		scale, err := s.grading.ActiveScale(ctx, exam)
		if err != nil {
			return nil, err
		}
		card.Lines = append(card.Lines, ReportSubjectLine{
			AssessmentName: submission.AssessmentName,
			SubjectID:      submission.SubjectID,
			Score:          score,
			MaxMarks:       exam.MaxMarks,
			Grade:          ResolveGrade(score, exam.MaxMarks, scale),
		})
	}
	sort.Slice(card.Lines, func(i, j int) bool { return card.Lines[i].AssessmentName < card.Lines[j].AssessmentName })
	return card, nil
}

// ExportClassTerm renders the class/term summary table synchronously.
func (s *ReportService) ExportClassTerm(ctx context.Context, classID, termID string, format ExportFormat) ([]byte, string, error) {
	if !format.Valid() {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	batch, err := s.summaries.SummarizeClassTerm(ctx, classID, termID)
	if err != nil {
		return nil, "", err
	}
	dataset := summariesToDataset(batch.Summaries)
	title := fmt.Sprintf("%s assessment summary", class.Name)
	var raw []byte
	switch format {
	case FormatCSV:
		raw, err = s.csv.Render(dataset)
	case FormatPDF:
		raw, err = s.pdf.Render(dataset, title)
	case FormatXLSX:
		raw, err = s.xlsx.Render(dataset, "Summary")
	}
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("class-%s-term-%s.%s", classID, termID, format)
	return raw, filename, nil
}

// EnqueueClassExport schedules an async class export and returns its job
// status handle.
func (s *ReportService) EnqueueClassExport(ctx context.Context, classID, termID string, format ExportFormat) (*ReportJobStatus, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	status := &ReportJobStatus{ID: uuid.NewString(), State: ReportJobQueued}
	s.mu.Lock()
	s.jobInfo[status.ID] = status
	s.mu.Unlock()
	err := s.queue.Enqueue(jobs.Job{
		ID:      status.ID,
		Type:    "class-export",
		Payload: exportJobPayload{jobID: status.ID, classID: classID, termID: termID, format: format},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobInfo, status.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	return status, nil
}

// JobStatus returns the state of one async export.
func (s *ReportService) JobStatus(id string) (*ReportJobStatus, error) {
	s.mu.RLock()
	status, ok := s.jobInfo[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if status.FinishedAt != nil && time.Since(*status.FinishedAt) > s.resultTTL {
		s.mu.Lock()
		delete(s.jobInfo, id)
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job expired")
	}
	copied := *status
	return &copied, nil
}

func (s *ReportService) handleExportJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	s.setJobState(payload.jobID, ReportJobRunning, "", "")
	raw, filename, err := s.ExportClassTerm(ctx, payload.classID, payload.termID, payload.format)
	if err != nil {
		s.finishJob(payload.jobID, ReportJobFailed, "", err.Error())
		return err
	}
	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		s.finishJob(payload.jobID, ReportJobFailed, "", err.Error())
		return err
	}
	path := filepath.Join(s.storageDir, filename)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.finishJob(payload.jobID, ReportJobFailed, "", err.Error())
		return err
	}
	s.finishJob(payload.jobID, ReportJobCompleted, path, "")
	return nil
}

func (s *ReportService) setJobState(id string, state ReportJobState, path, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.jobInfo[id]; ok {
		status.State = state
		status.FilePath = path
		status.Error = errMsg
	}
}

func (s *ReportService) finishJob(id string, state ReportJobState, path, errMsg string) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.jobInfo[id]; ok {
		status.State = state
		status.FilePath = path
		status.Error = errMsg
		status.FinishedAt = &now
	}
}

func summariesToDataset(summaries []models.ClassAssessmentSummary) export.Dataset {
	headers := []string{"Assessment", "Subject", "Students", "Scored", "Average", "Highest", "Lowest"}
	rows := make([]map[string]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, map[string]string{
			"Assessment": summary.AssessmentName,
			"Subject":    summary.Key.SubjectID,
			"Students":   strconv.Itoa(summary.StudentCount),
			"Scored":     strconv.Itoa(summary.ScoredCount),
			"Average":    fmt.Sprintf("%.2f", summary.Average),
			"Highest":    fmt.Sprintf("%.2f", summary.Highest),
			"Lowest":     fmt.Sprintf("%.2f", summary.Lowest),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
