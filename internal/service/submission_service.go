package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/anomaly"
	"github.com/shulepro/shulepro-api/internal/models"
	"github.com/shulepro/shulepro-api/internal/repository"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type submissionRepo interface {
	Create(ctx context.Context, submission *models.MarkSubmission) error
	FindByID(ctx context.Context, id string) (*models.MarkSubmission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.MarkSubmission, error)
	ListActiveKeys(ctx context.Context, teacherID, termID string) ([]models.AssessmentKey, error)
	ListApprovedByClassTerm(ctx context.Context, classID, termID string) ([]models.MarkSubmission, error)
	UpdateReview(ctx context.Context, id string, params repository.UpdateReviewParams) error
}

type examReader interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type responsibilityComputer interface {
	Compute(ctx context.Context, teacherID string) (*models.ResponsibilitySet, error)
}

type scaleResolver interface {
	ActiveScale(ctx context.Context, exam *models.Exam) ([]models.GradingScaleItem, error)
}

type summaryCache interface {
	Get(ctx context.Context, submissionID string) (*models.ClassAssessmentSummary, error)
	Set(ctx context.Context, submissionID string, summary *models.ClassAssessmentSummary) error
	Invalidate(ctx context.Context, submissionID string) error
}

type cacheLookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// MarkEntryRequest is one student's score in a submission payload. A nil
// score records the student as unmarked.
type MarkEntryRequest struct {
	StudentID string   `json:"student_id" validate:"required"`
	Score     *float64 `json:"score"`
}

// SubmitMarksRequest is a teacher's mark batch for one assessment.
type SubmitMarksRequest struct {
	ExamID    string             `json:"exam_id" validate:"required"`
	ClassID   string             `json:"class_id" validate:"required"`
	SubjectID string             `json:"subject_id" validate:"required"`
	Entries   []MarkEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// ReviewRequest is a DOS review decision on a pending submission.
type ReviewRequest struct {
	Status models.DOSStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Reason *string          `json:"reason"`
}

// SubmissionService owns the mark-submission lifecycle: reconciliation
// against responsibilities, submission with anomaly screening, DOS review
// and class aggregation.
type SubmissionService struct {
	submissions      submissionRepo
	exams            examReader
	subjects         subjectReader
	classes          classExistenceReader
	responsibilities responsibilityComputer
	grading          scaleResolver
	settings         settingsReader
	classifier       anomaly.Classifier
	cache            summaryCache
	metrics          cacheLookupRecorder
	validator        *validator.Validate
	logger           *zap.Logger
	now              func() time.Time
}

// SetCacheMetrics attaches a recorder for summary cache hit rates.
func (s *SubmissionService) SetCacheMetrics(metrics cacheLookupRecorder) {
	s.metrics = metrics
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(submissions submissionRepo, exams examReader, subjects subjectReader, classes classExistenceReader, responsibilities responsibilityComputer, grading scaleResolver, settings settingsReader, classifier anomaly.Classifier, cache summaryCache, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = anomaly.NewRuleClassifier(anomaly.DefaultConfig())
	}
	return &SubmissionService{
		submissions:      submissions,
		exams:            exams,
		subjects:         subjects,
		classes:          classes,
		responsibilities: responsibilities,
		grading:          grading,
		settings:         settings,
		classifier:       classifier,
		cache:            cache,
		validator:        validate,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile partitions a teacher's responsibilities into pending and
// completed against their non-rejected submissions. The notice is the
// advisory carried over from the responsibility calculation.
func (s *SubmissionService) Reconcile(ctx context.Context, teacherID string) (*models.ReconcileResult, string, error) {
	set, err := s.responsibilities.Compute(ctx, teacherID)
	if err != nil {
		return nil, "", err
	}
	result := &models.ReconcileResult{Pending: []models.Responsibility{}, Completed: []models.Responsibility{}}
	if len(set.Items) == 0 {
		return result, set.Notice, nil
	}
	keys, err := s.submissions.ListActiveKeys(ctx, teacherID, set.TermID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submitted keys")
	}
	submitted := make(map[models.AssessmentKey]bool, len(keys))
	for _, key := range keys {
		submitted[key] = true
	}
	for key, responsibility := range set.Items {
		if submitted[key] {
			result.Completed = append(result.Completed, responsibility)
		} else {
			result.Pending = append(result.Pending, responsibility)
		}
	}
	return result, set.Notice, nil
}

// Submit validates and persists a mark batch: the exam's scope must cover
// the class and subject, the key must be one of the teacher's
// responsibilities, and every score must fall within the exam's marks.
// Anomaly screening is advisory: a classifier failure is logged and the
// submission proceeds with no findings attached.
func (s *SubmissionService) Submit(ctx context.Context, teacherID string, req SubmitMarksRequest) (*models.MarkSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	exam, err := s.exams.FindByID(ctx, req.ExamID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !exam.AppliesTo(req.ClassID, req.SubjectID, class.Stream) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam is not scoped to this class and subject")
	}
	if err := s.checkResponsibility(ctx, teacherID, req); err != nil {
		return nil, err
	}
	for _, entry := range req.Entries {
		if entry.Score == nil {
			continue
		}
		if *entry.Score < 0 || *entry.Score > exam.MaxMarks {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score %.1f for student %s is outside 0..%.1f", *entry.Score, entry.StudentID, exam.MaxMarks))
		}
	}

	grades := make([]anomaly.Grade, 0, len(req.Entries))
	entries := make([]models.MarkEntry, 0, len(req.Entries))
	scored := 0
	sum := 0.0
	for _, entry := range req.Entries {
		grades = append(grades, anomaly.Grade{StudentID: entry.StudentID, Score: entry.Score})
		entries = append(entries, models.MarkEntry{StudentID: entry.StudentID, Score: entry.Score})
		if entry.Score != nil {
			scored++
			sum += *entry.Score
		}
	}
	average := 0.0
	if scored > 0 {
		average = sum / float64(scored)
	}

	anomalies := models.AnomalyList{}
	result, err := s.classifier.Classify(ctx, anomaly.Input{
		Subject:           subject.Name,
		Exam:              exam.Name,
		MaxMarks:          exam.MaxMarks,
		Grades:            grades,
		HistoricalAverage: s.historicalAverage(ctx, req.ClassID, req.SubjectID, req.ExamID),
	})
	if err != nil {
		s.logger.Warn("anomaly screening failed, submitting without findings",
			zap.String("exam_id", req.ExamID), zap.String("class_id", req.ClassID), zap.Error(err))
	} else {
		anomalies = result.Anomalies
	}

	submission := &models.MarkSubmission{
		TeacherID:      teacherID,
		ExamID:         req.ExamID,
		ClassID:        req.ClassID,
		SubjectID:      req.SubjectID,
		AssessmentName: fmt.Sprintf("%s - %s", exam.Name, subject.Name),
		StudentCount:   len(entries),
		AverageScore:   average,
		DOSStatus:      models.DOSStatusPending,
		Anomalies:      anomalies,
		SubmittedAt:    s.now(),
		Entries:        entries,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "marks for this assessment were already submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save submission")
	}
	return submission, nil
}

// checkResponsibility rejects a submission whose assessment key is not in
// the teacher's computed responsibility set. When the calculation is in a
// soft-failure state (advisory notice set) or unavailable, the gate is
// skipped: an empty set then reflects missing configuration, not a teacher
// overreaching.
func (s *SubmissionService) checkResponsibility(ctx context.Context, teacherID string, req SubmitMarksRequest) error {
	set, err := s.responsibilities.Compute(ctx, teacherID)
	if err != nil {
		s.logger.Warn("responsibility check unavailable, accepting submission",
			zap.String("teacher_id", teacherID), zap.Error(err))
		return nil
	}
	if set.Notice != "" {
		return nil
	}
	key := models.AssessmentKey{ExamID: req.ExamID, ClassID: req.ClassID, SubjectID: req.SubjectID}
	if _, ok := set.Items[key]; !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "assessment is not among your current responsibilities")
	}
	return nil
}

// historicalAverage estimates the class/subject baseline in percent from
// previously approved submissions in the current term. Any failure along
// the way just disables the historical drift check.
func (s *SubmissionService) historicalAverage(ctx context.Context, classID, subjectID, excludeExamID string) *float64 {
	settings, err := s.settings.Get(ctx)
	if err != nil || settings.CurrentTermID == nil || *settings.CurrentTermID == "" {
		return nil
	}
	approved, err := s.submissions.ListApprovedByClassTerm(ctx, classID, *settings.CurrentTermID)
	if err != nil {
		s.logger.Warn("failed to load historical submissions", zap.String("class_id", classID), zap.Error(err))
		return nil
	}
	sum := 0.0
	count := 0
	for _, submission := range approved {
		if submission.SubjectID != subjectID || submission.ExamID == excludeExamID {
			continue
		}
		exam, err := s.exams.FindByID(ctx, submission.ExamID)
		if err != nil || exam.MaxMarks <= 0 {
			continue
		}
		sum += submission.AverageScore / exam.MaxMarks * 100
		count++
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

// List returns submissions matching the filter.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter) ([]models.MarkSubmission, error) {
	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Get returns one submission with its entries.
func (s *SubmissionService) Get(ctx context.Context, id string) (*models.MarkSubmission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Review applies a DOS decision to a pending submission. Reviewed
// submissions are immutable: a second decision reports ALREADY_REVIEWED.
func (s *SubmissionService) Review(ctx context.Context, id, reviewerID string, req ReviewRequest) (*models.MarkSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if req.Status == models.DOSStatusRejected && (req.Reason == nil || *req.Reason == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a reason")
	}
	params := repository.UpdateReviewParams{
		Status:     req.Status,
		ReviewedBy: reviewerID,
		ReviewedAt: s.now(),
	}
	if req.Status == models.DOSStatusRejected {
		params.RejectReason = req.Reason
	}
	if err := s.submissions.UpdateReview(ctx, id, params); err != nil {
		if err == sql.ErrNoRows {
			existing, findErr := s.submissions.FindByID(ctx, id)
			switch {
			case findErr == sql.ErrNoRows:
				return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			case findErr != nil:
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
			case existing.DOSStatus.Terminal():
				return nil, appErrors.Clone(appErrors.ErrReviewed, "submission was already reviewed")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission changed during review, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review submission")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate summary cache", zap.String("submission_id", id), zap.Error(err))
		}
	}
	return s.Get(ctx, id)
}

// Summarize aggregates one submission into a class assessment summary.
func (s *SubmissionService) Summarize(ctx context.Context, submissionID string) (*models.ClassAssessmentSummary, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, submissionID)
		if err != nil {
			s.logger.Warn("summary cache unavailable", zap.String("submission_id", submissionID), zap.Error(err))
		} else if cached != nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}
	submission, err := s.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exams.FindByID(ctx, submission.ExamID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "submission references a deleted exam")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	scale, err := s.grading.ActiveScale(ctx, exam)
	if err != nil {
		return nil, err
	}
	summary := buildSummary(submission, exam, scale)
	if s.cache != nil {
		if err := s.cache.Set(ctx, submissionID, summary); err != nil {
			s.logger.Warn("failed to cache summary", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}
	return summary, nil
}

// SummarizeClassTerm aggregates every approved submission of a class in a
// term. Submissions that cannot be aggregated are reported as skipped,
// never silently dropped.
func (s *SubmissionService) SummarizeClassTerm(ctx context.Context, classID, termID string) (*models.BatchSummaryResult, error) {
	if classID == "" || termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class and term required")
	}
	submissions, err := s.submissions.ListApprovedByClassTerm(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved submissions")
	}
	result := &models.BatchSummaryResult{Summaries: []models.ClassAssessmentSummary{}}
	for _, submission := range submissions {
		summary, err := s.Summarize(ctx, submission.ID)
		if err != nil {
			result.Skipped = append(result.Skipped, models.SummarySkip{SubmissionID: submission.ID, Reason: appErrors.FromError(err).Message})
			continue
		}
		result.Summaries = append(result.Summaries, *summary)
	}
	return result, nil
}

func buildSummary(submission *models.MarkSubmission, exam *models.Exam, scale []models.GradingScaleItem) *models.ClassAssessmentSummary {
	summary := &models.ClassAssessmentSummary{
		Key:               submission.Key(),
		AssessmentName:    submission.AssessmentName,
		StudentCount:      len(submission.Entries),
		GradeDistribution: make(map[string]int),
	}
	first := true
	sum := 0.0
	for _, entry := range submission.Entries {
		grade := ResolveGrade(entry.Score, exam.MaxMarks, scale)
		summary.GradeDistribution[grade]++
		if entry.Score == nil {
			continue
		}
		summary.ScoredCount++
		sum += *entry.Score
		if first || *entry.Score > summary.Highest {
			summary.Highest = *entry.Score
		}
		if first || *entry.Score < summary.Lowest {
			summary.Lowest = *entry.Score
		}
		first = false
	}
	if summary.ScoredCount > 0 {
		summary.Average = sum / float64(summary.ScoredCount)
	}
	return summary
}
