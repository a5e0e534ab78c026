package service

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

type settingsReader interface {
	Get(ctx context.Context) (*models.GeneralSettings, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ListAssignments(ctx context.Context, teacherID string) ([]models.SubjectAssignment, error)
	ListAssignmentsByClass(ctx context.Context, classID string) ([]models.SubjectAssignment, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassInfo, error)
	ListByClassTeacher(ctx context.Context, teacherID string) ([]models.ClassInfo, error)
}

type subjectBatchReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error)
}

type examLister interface {
	ListByTerm(ctx context.Context, termID string) ([]models.Exam, error)
}

// Notices for the soft-failure states of the responsibility calculation.
// These are advisory: the caller still receives an empty, valid set.
const (
	NoticeMissingTeacher = "teacher identity is missing; no responsibilities can be derived"
	NoticeUnknownTeacher = "teacher record not found; no responsibilities can be derived"
	NoticeUnconfigured   = "school settings are not configured yet; responsibilities are unavailable"
	NoticeNoCurrentTerm  = "no current term is set; responsibilities are unavailable"
)

// ResponsibilityService derives the set of assessments each teacher owes
// marks for in the current term.
type ResponsibilityService struct {
	settings settingsReader
	teachers assignmentReader
	classes  classReader
	subjects subjectBatchReader
	exams    examLister
	logger   *zap.Logger
}

// NewResponsibilityService constructs ResponsibilityService.
func NewResponsibilityService(settings settingsReader, teachers assignmentReader, classes classReader, subjects subjectBatchReader, exams examLister, logger *zap.Logger) *ResponsibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponsibilityService{
		settings: settings,
		teachers: teachers,
		classes:  classes,
		subjects: subjects,
		exams:    exams,
		logger:   logger,
	}
}

// Compute derives the responsibility set for one teacher. Configuration
// gaps (no settings, no current term, unknown teacher) are soft: the
// result is an empty set carrying a Notice, never an error. Errors are
// reserved for infrastructure failures.
func (s *ResponsibilityService) Compute(ctx context.Context, teacherID string) (*models.ResponsibilitySet, error) {
	set := &models.ResponsibilitySet{
		TeacherID: teacherID,
		Items:     make(map[models.AssessmentKey]models.Responsibility),
	}
	trimmed := strings.TrimSpace(teacherID)
	if trimmed == "" || strings.EqualFold(trimmed, "undefined") || strings.EqualFold(trimmed, "null") {
		set.Notice = NoticeMissingTeacher
		return set, nil
	}
	if _, err := s.teachers.FindByID(ctx, trimmed); err != nil {
		if err == sql.ErrNoRows {
			set.Notice = NoticeUnknownTeacher
			return set, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			set.Notice = NoticeUnconfigured
			return set, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	if settings.IsTemplate() {
		set.Notice = NoticeUnconfigured
		return set, nil
	}
	if settings.CurrentTermID == nil || *settings.CurrentTermID == "" {
		set.Notice = NoticeNoCurrentTerm
		return set, nil
	}
	termID := *settings.CurrentTermID
	set.TermID = termID

	exams, err := s.exams.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	if len(exams) == 0 {
		return set, nil
	}

	classCache := make(map[string]*models.ClassInfo)
	type candidate struct {
		key   models.AssessmentKey
		exam  models.Exam
		class models.ClassInfo
	}
	var candidates []candidate

	collect := func(classID, subjectID string) error {
		class, ok := classCache[classID]
		if !ok {
			loaded, err := s.classes.FindByID(ctx, classID)
			if err != nil {
				if err == sql.ErrNoRows {
					s.logger.Warn("assignment references missing class", zap.String("class_id", classID))
					classCache[classID] = nil
					return nil
				}
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
			}
			classCache[classID] = loaded
			class = loaded
		}
		if class == nil {
			return nil
		}
		for _, exam := range exams {
			if exam.TeacherID != nil && *exam.TeacherID != trimmed {
				continue
			}
			if !exam.AppliesTo(classID, subjectID, class.Stream) {
				continue
			}
			key := models.AssessmentKey{ExamID: exam.ID, ClassID: classID, SubjectID: subjectID}
			candidates = append(candidates, candidate{key: key, exam: exam, class: *class})
		}
		return nil
	}

	// Direct subject assignments.
	assignments, err := s.teachers.ListAssignments(ctx, trimmed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject assignments")
	}
	for _, assignment := range assignments {
		if err := collect(assignment.ClassID, assignment.SubjectID); err != nil {
			return nil, err
		}
	}

	// Class-teacher oversight: every subject taught in an owned class.
	ownedClasses, err := s.classes.ListByClassTeacher(ctx, trimmed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list owned classes")
	}
	for _, class := range ownedClasses {
		c := class
		classCache[class.ID] = &c
		classAssignments, err := s.teachers.ListAssignmentsByClass(ctx, class.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class assignments")
		}
		seenSubjects := make(map[string]bool)
		for _, assignment := range classAssignments {
			if seenSubjects[assignment.SubjectID] {
				continue
			}
			seenSubjects[assignment.SubjectID] = true
			if err := collect(class.ID, assignment.SubjectID); err != nil {
				return nil, err
			}
		}
	}

	if len(candidates) == 0 {
		return set, nil
	}

	subjectIDs := make([]string, 0, len(candidates))
	seenSubjectIDs := make(map[string]bool)
	for _, cand := range candidates {
		if !seenSubjectIDs[cand.key.SubjectID] {
			seenSubjectIDs[cand.key.SubjectID] = true
			subjectIDs = append(subjectIDs, cand.key.SubjectID)
		}
	}
	subjects, err := s.subjects.FindByIDs(ctx, subjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	for _, cand := range candidates {
		if _, exists := set.Items[cand.key]; exists {
			continue
		}
		subject, ok := subjects[cand.key.SubjectID]
		if !ok {
			s.logger.Warn("assignment references missing subject", zap.String("subject_id", cand.key.SubjectID))
			continue
		}
		set.Items[cand.key] = models.Responsibility{
			Key:     cand.key,
			Exam:    cand.exam,
			Class:   cand.class,
			Subject: subject,
		}
	}
	return set, nil
}
