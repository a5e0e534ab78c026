package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulepro/shulepro-api/internal/anomaly"
	"github.com/shulepro/shulepro-api/internal/models"
	"github.com/shulepro/shulepro-api/internal/repository"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type mockSubmissionRepo struct {
	submissions map[string]*models.MarkSubmission
	activeKeys  []models.AssessmentKey
	approved    []models.MarkSubmission
	createErr   error
	created     *models.MarkSubmission
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{submissions: map[string]*models.MarkSubmission{}}
}

func (m *mockSubmissionRepo) Create(ctx context.Context, submission *models.MarkSubmission) error {
	if m.createErr != nil {
		return m.createErr
	}
	if submission.ID == "" {
		submission.ID = "sub-1"
	}
	m.created = submission
	m.submissions[submission.ID] = submission
	return nil
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id string) (*models.MarkSubmission, error) {
	if s, ok := m.submissions[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) List(ctx context.Context, filter models.SubmissionFilter) ([]models.MarkSubmission, error) {
	out := make([]models.MarkSubmission, 0, len(m.submissions))
	for _, s := range m.submissions {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSubmissionRepo) ListActiveKeys(ctx context.Context, teacherID, termID string) ([]models.AssessmentKey, error) {
	return m.activeKeys, nil
}

func (m *mockSubmissionRepo) ListApprovedByClassTerm(ctx context.Context, classID, termID string) ([]models.MarkSubmission, error) {
	return m.approved, nil
}

func (m *mockSubmissionRepo) UpdateReview(ctx context.Context, id string, params repository.UpdateReviewParams) error {
	s, ok := m.submissions[id]
	if !ok || s.DOSStatus != models.DOSStatusPending {
		return sql.ErrNoRows
	}
	s.DOSStatus = params.Status
	s.ReviewedBy = &params.ReviewedBy
	s.ReviewedAt = &params.ReviewedAt
	s.RejectReason = params.RejectReason
	return nil
}

type mockExamReader struct {
	exams map[string]*models.Exam
}

func (m *mockExamReader) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	if e, ok := m.exams[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

type mockSubjectReader struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectReader) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type stubResponsibilities struct {
	set *models.ResponsibilitySet
}

func (s *stubResponsibilities) Compute(ctx context.Context, teacherID string) (*models.ResponsibilitySet, error) {
	return s.set, nil
}

type stubScaleResolver struct {
	scale []models.GradingScaleItem
}

func (s *stubScaleResolver) ActiveScale(ctx context.Context, exam *models.Exam) ([]models.GradingScaleItem, error) {
	return s.scale, nil
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, in anomaly.Input) (anomaly.Result, error) {
	return anomaly.Result{}, errors.New("screening backend down")
}

type recordingCache struct {
	entries     map[string]*models.ClassAssessmentSummary
	invalidated []string
	sets        int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]*models.ClassAssessmentSummary{}}
}

func (c *recordingCache) Get(ctx context.Context, submissionID string) (*models.ClassAssessmentSummary, error) {
	return c.entries[submissionID], nil
}

func (c *recordingCache) Set(ctx context.Context, submissionID string, summary *models.ClassAssessmentSummary) error {
	c.entries[submissionID] = summary
	c.sets++
	return nil
}

func (c *recordingCache) Invalidate(ctx context.Context, submissionID string) error {
	c.invalidated = append(c.invalidated, submissionID)
	delete(c.entries, submissionID)
	return nil
}

type submissionFixture struct {
	repo       *mockSubmissionRepo
	exams      *mockExamReader
	subjects   *mockSubjectReader
	classes    *mockClassReader
	resp       *stubResponsibilities
	scale      *stubScaleResolver
	settings   *mockSettingsReader
	classifier anomaly.Classifier
	cache      *recordingCache
}

func newSubmissionFixture() *submissionFixture {
	term := "term-1"
	owed := models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}
	return &submissionFixture{
		repo: newMockSubmissionRepo(),
		exams: &mockExamReader{exams: map[string]*models.Exam{
			"e1": {ID: "e1", Name: "Midterm", TermID: "term-1", MaxMarks: 100},
		}},
		subjects: &mockSubjectReader{subjects: map[string]*models.Subject{
			"s1": {ID: "s1", Name: "Mathematics"},
		}},
		classes: &mockClassReader{classes: map[string]*models.ClassInfo{
			"c1": {ID: "c1", Name: "Form 2 West"},
			"c2": {ID: "c2", Name: "Form 2 East", Stream: ptrStr("East")},
		}},
		resp: &stubResponsibilities{set: &models.ResponsibilitySet{
			TermID: term,
			Items:  map[models.AssessmentKey]models.Responsibility{owed: {Key: owed}},
		}},
		scale:    &stubScaleResolver{scale: standardScale()},
		settings: &mockSettingsReader{settings: &models.GeneralSettings{SchoolName: "Hillside Secondary", CurrentTermID: &term}},
		cache:    newRecordingCache(),
	}
}

func (f *submissionFixture) service() *SubmissionService {
	svc := NewSubmissionService(f.repo, f.exams, f.subjects, f.classes, f.resp, f.scale, f.settings, f.classifier, f.cache, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func submitRequest(scores ...interface{}) SubmitMarksRequest {
	req := SubmitMarksRequest{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}
	for i, raw := range scores {
		entry := MarkEntryRequest{StudentID: string(rune('a' + i))}
		switch v := raw.(type) {
		case int:
			entry.Score = ptrFloat(float64(v))
		case float64:
			entry.Score = ptrFloat(v)
		}
		req.Entries = append(req.Entries, entry)
	}
	return req
}

func TestReconcilePartitionsResponsibilities(t *testing.T) {
	f := newSubmissionFixture()
	done := models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}
	open := models.AssessmentKey{ExamID: "e2", ClassID: "c1", SubjectID: "s1"}
	f.resp.set = &models.ResponsibilitySet{
		TermID: "term-1",
		Items: map[models.AssessmentKey]models.Responsibility{
			done: {Key: done},
			open: {Key: open},
		},
	}
	f.repo.activeKeys = []models.AssessmentKey{done}

	result, notice, err := f.service().Reconcile(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, notice)
	require.Len(t, result.Completed, 1)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, done, result.Completed[0].Key)
	assert.Equal(t, open, result.Pending[0].Key)
}

func TestReconcileRejectedSubmissionReopens(t *testing.T) {
	f := newSubmissionFixture()
	key := models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}
	f.resp.set = &models.ResponsibilitySet{
		TermID: "term-1",
		Items:  map[models.AssessmentKey]models.Responsibility{key: {Key: key}},
	}
	// Rejected submissions are excluded from the active keys, so the
	// assessment shows up as pending again.
	f.repo.activeKeys = nil

	result, _, err := f.service().Reconcile(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, result.Completed)
	require.Len(t, result.Pending, 1)
}

func TestReconcilePassesNoticeThrough(t *testing.T) {
	f := newSubmissionFixture()
	f.resp.set = &models.ResponsibilitySet{Notice: NoticeNoCurrentTerm, Items: map[models.AssessmentKey]models.Responsibility{}}

	result, notice, err := f.service().Reconcile(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, NoticeNoCurrentTerm, notice)
	assert.Empty(t, result.Pending)
	assert.Empty(t, result.Completed)
}

func TestSubmitPersistsPendingSubmission(t *testing.T) {
	f := newSubmissionFixture()
	svc := f.service()

	submission, err := svc.Submit(context.Background(), "t1", submitRequest(80, 60, nil))
	require.NoError(t, err)
	assert.Equal(t, "t1", submission.TeacherID)
	assert.Equal(t, "Midterm - Mathematics", submission.AssessmentName)
	assert.Equal(t, models.DOSStatusPending, submission.DOSStatus)
	assert.Equal(t, 3, submission.StudentCount)
	assert.InDelta(t, 70.0, submission.AverageScore, 0.001)
	assert.NotNil(t, submission.Anomalies)
	assert.Equal(t, svc.now(), submission.SubmittedAt)
	require.NotNil(t, f.repo.created)
	assert.Len(t, f.repo.created.Entries, 3)
}

func TestSubmitRejectsOutOfRangeScore(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.service().Submit(context.Background(), "t1", submitRequest(101))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.created)
}

func TestSubmitUnknownExam(t *testing.T) {
	f := newSubmissionFixture()
	req := submitRequest(50)
	req.ExamID = "gone"

	_, err := f.service().Submit(context.Background(), "t1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmitDuplicateConflicts(t *testing.T) {
	f := newSubmissionFixture()
	f.repo.createErr = repository.ErrDuplicateSubmission

	_, err := f.service().Submit(context.Background(), "t1", submitRequest(50))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitSurvivesClassifierFailure(t *testing.T) {
	f := newSubmissionFixture()
	f.classifier = failingClassifier{}

	submission, err := f.service().Submit(context.Background(), "t1", submitRequest(50, 60))
	require.NoError(t, err)
	assert.NotNil(t, submission.Anomalies)
	assert.Empty(t, submission.Anomalies)
}

func TestSubmitAttachesAnomalies(t *testing.T) {
	f := newSubmissionFixture()

	// Six identical scores trip the uniform rule.
	submission, err := f.service().Submit(context.Background(), "t1", submitRequest(75, 75, 75, 75, 75, 75))
	require.NoError(t, err)
	require.Len(t, submission.Anomalies, 1)
	assert.Equal(t, "GENERAL", submission.Anomalies[0].StudentID)
}

func TestSubmitRejectsClassOutsideExamScope(t *testing.T) {
	f := newSubmissionFixture()
	f.exams.exams["e1"].ClassID = ptrStr("c1")
	req := submitRequest(50)
	req.ClassID = "c2"

	_, err := f.service().Submit(context.Background(), "t1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.created)
}

func TestSubmitRejectsStreamMismatch(t *testing.T) {
	f := newSubmissionFixture()
	// Exam restricted to the West stream; c1 has no stream at all.
	f.exams.exams["e1"].Stream = ptrStr("West")

	_, err := f.service().Submit(context.Background(), "t1", submitRequest(50))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.created)
}

func TestSubmitUnknownClass(t *testing.T) {
	f := newSubmissionFixture()
	req := submitRequest(50)
	req.ClassID = "gone"

	_, err := f.service().Submit(context.Background(), "t1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.created)
}

func TestSubmitOutsideResponsibilities(t *testing.T) {
	f := newSubmissionFixture()
	f.resp.set = &models.ResponsibilitySet{TermID: "term-1", Items: map[models.AssessmentKey]models.Responsibility{}}

	_, err := f.service().Submit(context.Background(), "t1", submitRequest(50))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.repo.created)
}

func TestSubmitSkipsResponsibilityGateOnNotice(t *testing.T) {
	f := newSubmissionFixture()
	// An advisory notice means responsibilities could not be derived; the
	// gate must not lock teachers out over missing configuration.
	f.resp.set = &models.ResponsibilitySet{Notice: NoticeNoCurrentTerm, Items: map[models.AssessmentKey]models.Responsibility{}}

	submission, err := f.service().Submit(context.Background(), "t1", submitRequest(50))
	require.NoError(t, err)
	assert.Equal(t, models.DOSStatusPending, submission.DOSStatus)
}

func pendingSubmission(f *submissionFixture) *models.MarkSubmission {
	submission := &models.MarkSubmission{
		ID:             "sub-1",
		TeacherID:      "t1",
		ExamID:         "e1",
		ClassID:        "c1",
		SubjectID:      "s1",
		AssessmentName: "Midterm - Mathematics",
		DOSStatus:      models.DOSStatusPending,
		Entries: []models.MarkEntry{
			{StudentID: "a", Score: ptrFloat(85)},
			{StudentID: "b", Score: ptrFloat(42)},
			{StudentID: "c", Score: nil},
		},
	}
	submission.StudentCount = len(submission.Entries)
	f.repo.submissions[submission.ID] = submission
	return submission
}

func TestReviewApprove(t *testing.T) {
	f := newSubmissionFixture()
	pendingSubmission(f)

	reviewed, err := f.service().Review(context.Background(), "sub-1", "dos-1", ReviewRequest{Status: models.DOSStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.DOSStatusApproved, reviewed.DOSStatus)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "dos-1", *reviewed.ReviewedBy)
	assert.Equal(t, []string{"sub-1"}, f.cache.invalidated)
}

func TestReviewRejectRequiresReason(t *testing.T) {
	f := newSubmissionFixture()
	pendingSubmission(f)

	_, err := f.service().Review(context.Background(), "sub-1", "dos-1", ReviewRequest{Status: models.DOSStatusRejected})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReviewRejectStoresReason(t *testing.T) {
	f := newSubmissionFixture()
	pendingSubmission(f)
	reason := "scores do not match the marking scheme"

	reviewed, err := f.service().Review(context.Background(), "sub-1", "dos-1", ReviewRequest{Status: models.DOSStatusRejected, Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, models.DOSStatusRejected, reviewed.DOSStatus)
	require.NotNil(t, reviewed.RejectReason)
	assert.Equal(t, reason, *reviewed.RejectReason)
}

func TestReviewAlreadyReviewed(t *testing.T) {
	f := newSubmissionFixture()
	submission := pendingSubmission(f)
	submission.DOSStatus = models.DOSStatusApproved

	_, err := f.service().Review(context.Background(), "sub-1", "dos-1", ReviewRequest{Status: models.DOSStatusRejected, Reason: ptrStr("late")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrReviewed.Code, appErrors.FromError(err).Code)
}

func TestReviewNotFound(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.service().Review(context.Background(), "missing", "dos-1", ReviewRequest{Status: models.DOSStatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSummarizeBuildsDistribution(t *testing.T) {
	f := newSubmissionFixture()
	pendingSubmission(f)

	summary, err := f.service().Summarize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.StudentCount)
	assert.Equal(t, 2, summary.ScoredCount)
	assert.InDelta(t, 63.5, summary.Average, 0.001)
	assert.InDelta(t, 85.0, summary.Highest, 0.001)
	assert.InDelta(t, 42.0, summary.Lowest, 0.001)
	assert.Equal(t, map[string]int{"A": 1, "E": 1, "N/A": 1}, summary.GradeDistribution)
	assert.Equal(t, 1, f.cache.sets)
}

func TestSummarizeNoScoredEntries(t *testing.T) {
	f := newSubmissionFixture()
	submission := pendingSubmission(f)
	submission.Entries = []models.MarkEntry{{StudentID: "a"}, {StudentID: "b"}}
	submission.StudentCount = 2

	summary, err := f.service().Summarize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Zero(t, summary.ScoredCount)
	assert.Zero(t, summary.Average)
	assert.Zero(t, summary.Highest)
	assert.Zero(t, summary.Lowest)
	assert.Equal(t, map[string]int{"N/A": 2}, summary.GradeDistribution)
}

func TestSummarizeServesCachedCopy(t *testing.T) {
	f := newSubmissionFixture()
	pendingSubmission(f)
	svc := f.service()

	first, err := svc.Summarize(context.Background(), "sub-1")
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.cache.sets)
}

func TestSummarizeDeletedExam(t *testing.T) {
	f := newSubmissionFixture()
	submission := pendingSubmission(f)
	submission.ExamID = "gone"

	_, err := f.service().Summarize(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSummarizeClassTermReportsSkips(t *testing.T) {
	f := newSubmissionFixture()
	good := pendingSubmission(f)
	good.DOSStatus = models.DOSStatusApproved
	broken := &models.MarkSubmission{ID: "sub-2", ExamID: "gone", DOSStatus: models.DOSStatusApproved}
	f.repo.submissions[broken.ID] = broken
	f.repo.approved = []models.MarkSubmission{*good, *broken}

	result, err := f.service().SummarizeClassTerm(context.Background(), "c1", "term-1")
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "sub-2", result.Skipped[0].SubmissionID)
	assert.Equal(t, "submission references a deleted exam", result.Skipped[0].Reason)
}

func TestSummarizeClassTermRequiresIdentifiers(t *testing.T) {
	f := newSubmissionFixture()

	_, err := f.service().SummarizeClassTerm(context.Background(), "", "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
