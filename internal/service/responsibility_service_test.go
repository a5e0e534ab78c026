package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulepro/shulepro-api/internal/models"
)

func ptrStr(v string) *string { return &v }

type mockSettingsReader struct {
	settings *models.GeneralSettings
}

func (m *mockSettingsReader) Get(ctx context.Context) (*models.GeneralSettings, error) {
	if m.settings == nil {
		return nil, sql.ErrNoRows
	}
	return m.settings, nil
}

type mockTeacherReader struct {
	teachers         map[string]*models.Teacher
	assignments      map[string][]models.SubjectAssignment
	classAssignments map[string][]models.SubjectAssignment
}

func (m *mockTeacherReader) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherReader) ListAssignments(ctx context.Context, teacherID string) ([]models.SubjectAssignment, error) {
	return m.assignments[teacherID], nil
}

func (m *mockTeacherReader) ListAssignmentsByClass(ctx context.Context, classID string) ([]models.SubjectAssignment, error) {
	return m.classAssignments[classID], nil
}

type mockClassReader struct {
	classes map[string]*models.ClassInfo
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.ClassInfo, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassReader) ListByClassTeacher(ctx context.Context, teacherID string) ([]models.ClassInfo, error) {
	var out []models.ClassInfo
	for _, c := range m.classes {
		if c.ClassTeacherID != nil && *c.ClassTeacherID == teacherID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type mockSubjectBatchReader struct {
	subjects map[string]models.Subject
}

func (m *mockSubjectBatchReader) FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error) {
	out := make(map[string]models.Subject, len(ids))
	for _, id := range ids {
		if s, ok := m.subjects[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type mockExamLister struct {
	exams []models.Exam
}

func (m *mockExamLister) ListByTerm(ctx context.Context, termID string) ([]models.Exam, error) {
	return m.exams, nil
}

type responsibilityFixture struct {
	settings *mockSettingsReader
	teachers *mockTeacherReader
	classes  *mockClassReader
	subjects *mockSubjectBatchReader
	exams    *mockExamLister
}

func newResponsibilityFixture() *responsibilityFixture {
	term := "term-1"
	return &responsibilityFixture{
		settings: &mockSettingsReader{settings: &models.GeneralSettings{
			SchoolName:    "Hillside Secondary",
			CurrentTermID: &term,
		}},
		teachers: &mockTeacherReader{
			teachers:         map[string]*models.Teacher{"t1": {ID: "t1"}},
			assignments:      map[string][]models.SubjectAssignment{},
			classAssignments: map[string][]models.SubjectAssignment{},
		},
		classes:  &mockClassReader{classes: map[string]*models.ClassInfo{}},
		subjects: &mockSubjectBatchReader{subjects: map[string]models.Subject{}},
		exams:    &mockExamLister{},
	}
}

func (f *responsibilityFixture) service() *ResponsibilityService {
	return NewResponsibilityService(f.settings, f.teachers, f.classes, f.subjects, f.exams, nil)
}

func TestComputeMissingTeacherIdentity(t *testing.T) {
	svc := newResponsibilityFixture().service()

	for _, id := range []string{"", "   ", "undefined", "NULL"} {
		set, err := svc.Compute(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, NoticeMissingTeacher, set.Notice)
		assert.Empty(t, set.Items)
	}
}

func TestComputeUnknownTeacher(t *testing.T) {
	svc := newResponsibilityFixture().service()

	set, err := svc.Compute(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, NoticeUnknownTeacher, set.Notice)
	assert.Empty(t, set.Items)
}

func TestComputeTemplateSettings(t *testing.T) {
	f := newResponsibilityFixture()
	f.settings.settings.SchoolName = models.TemplateSchoolName

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, NoticeUnconfigured, set.Notice)
	assert.Empty(t, set.Items)
}

func TestComputeNoCurrentTerm(t *testing.T) {
	f := newResponsibilityFixture()
	f.settings.settings.CurrentTermID = nil

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, NoticeNoCurrentTerm, set.Notice)
	assert.Empty(t, set.Items)
}

func TestComputeDirectAssignments(t *testing.T) {
	f := newResponsibilityFixture()
	f.classes.classes["c1"] = &models.ClassInfo{ID: "c1", Name: "Form 1"}
	f.subjects.subjects["s1"] = models.Subject{ID: "s1", Name: "Mathematics"}
	f.teachers.assignments["t1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
	}
	f.exams.exams = []models.Exam{
		{ID: "e1", Name: "Midterm", TermID: "term-1", MaxMarks: 100},
		{ID: "e2", Name: "Endterm", TermID: "term-1", MaxMarks: 100},
	}

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, set.Notice)
	assert.Equal(t, "term-1", set.TermID)
	assert.Len(t, set.Items, 2)
	assert.Contains(t, set.Items, models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"})
	assert.Contains(t, set.Items, models.AssessmentKey{ExamID: "e2", ClassID: "c1", SubjectID: "s1"})
}

func TestComputeExamScopeFilters(t *testing.T) {
	f := newResponsibilityFixture()
	f.classes.classes["c1"] = &models.ClassInfo{ID: "c1", Stream: ptrStr("East")}
	f.subjects.subjects["s1"] = models.Subject{ID: "s1", Name: "Physics"}
	f.teachers.assignments["t1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
	}
	f.exams.exams = []models.Exam{
		{ID: "e1", TermID: "term-1", MaxMarks: 100},                          // unscoped, applies
		{ID: "e2", TermID: "term-1", MaxMarks: 100, ClassID: ptrStr("c2")},   // other class
		{ID: "e3", TermID: "term-1", MaxMarks: 100, SubjectID: ptrStr("s2")}, // other subject
		{ID: "e4", TermID: "term-1", MaxMarks: 100, Stream: ptrStr("West")},  // other stream
		{ID: "e5", TermID: "term-1", MaxMarks: 100, TeacherID: ptrStr("t2")}, // pinned elsewhere
		{ID: "e6", TermID: "term-1", MaxMarks: 100, TeacherID: ptrStr("t1")}, // pinned to us
		{ID: "e7", TermID: "term-1", MaxMarks: 100, Stream: ptrStr("East")},  // matching stream
		{ID: "e8", TermID: "term-1", MaxMarks: 100, ClassID: ptrStr("c1")},   // matching class
	}

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	examIDs := make(map[string]bool)
	for key := range set.Items {
		examIDs[key.ExamID] = true
	}
	assert.Equal(t, map[string]bool{"e1": true, "e6": true, "e7": true, "e8": true}, examIDs)
}

func TestComputeClassTeacherOversight(t *testing.T) {
	f := newResponsibilityFixture()
	f.classes.classes["c1"] = &models.ClassInfo{ID: "c1", ClassTeacherID: ptrStr("t1")}
	f.subjects.subjects["s1"] = models.Subject{ID: "s1", Name: "English"}
	f.subjects.subjects["s2"] = models.Subject{ID: "s2", Name: "History"}
	// t1 teaches s1 directly; s2 is taught in c1 by someone else.
	f.teachers.assignments["t1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
	}
	f.teachers.classAssignments["c1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
		{TeacherID: "t2", ClassID: "c1", SubjectID: "s2"},
		{TeacherID: "t3", ClassID: "c1", SubjectID: "s2"}, // duplicate subject
	}
	f.exams.exams = []models.Exam{{ID: "e1", TermID: "term-1", MaxMarks: 100}}

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, set.Items, 2)
	assert.Contains(t, set.Items, models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"})
	assert.Contains(t, set.Items, models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s2"})
}

func TestComputeSkipsDanglingReferences(t *testing.T) {
	f := newResponsibilityFixture()
	f.classes.classes["c1"] = &models.ClassInfo{ID: "c1"}
	f.subjects.subjects["s1"] = models.Subject{ID: "s1"}
	f.teachers.assignments["t1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
		{TeacherID: "t1", ClassID: "gone", SubjectID: "s1"}, // deleted class
		{TeacherID: "t1", ClassID: "c1", SubjectID: "gone"}, // deleted subject
	}
	f.exams.exams = []models.Exam{{ID: "e1", TermID: "term-1", MaxMarks: 100}}

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, set.Items, 1)
	assert.Contains(t, set.Items, models.AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"})
}

func TestComputeTrimsTeacherID(t *testing.T) {
	f := newResponsibilityFixture()
	set, err := f.service().Compute(context.Background(), "  t1  ")
	require.NoError(t, err)
	assert.Empty(t, set.Notice)
}

func TestComputeNoExamsYieldsEmptySet(t *testing.T) {
	f := newResponsibilityFixture()
	f.teachers.assignments["t1"] = []models.SubjectAssignment{
		{TeacherID: "t1", ClassID: "c1", SubjectID: "s1"},
	}

	set, err := f.service().Compute(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, set.Notice)
	assert.Empty(t, set.Items)
}
