package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/models"
	"github.com/shulepro/shulepro-api/internal/service"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
	"github.com/shulepro/shulepro-api/pkg/response"
)

// AssessmentHandler handles responsibility and mark-submission endpoints.
type AssessmentHandler struct {
	responsibilities *service.ResponsibilityService
	submissions      *service.SubmissionService
	metrics          *service.MetricsService
}

// NewAssessmentHandler constructs an assessment handler.
func NewAssessmentHandler(responsibilities *service.ResponsibilityService, submissions *service.SubmissionService, metrics *service.MetricsService) *AssessmentHandler {
	return &AssessmentHandler{responsibilities: responsibilities, submissions: submissions, metrics: metrics}
}

// Responsibilities returns the acting teacher's derived assessment set.
func (h *AssessmentHandler) Responsibilities(c *gin.Context) {
	set, err := h.responsibilities.Compute(c.Request.Context(), teacherIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{
		"teacher_id":       set.TeacherID,
		"term_id":          set.TermID,
		"responsibilities": set.List(),
	}
	if set.Notice != "" {
		response.JSONWithNotice(c, http.StatusOK, payload, set.Notice)
		return
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// Reconcile partitions responsibilities into pending and completed.
func (h *AssessmentHandler) Reconcile(c *gin.Context) {
	result, notice, err := h.submissions.Reconcile(c.Request.Context(), teacherIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if notice != "" {
		response.JSONWithNotice(c, http.StatusOK, result, notice)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Submit records a teacher's mark batch for one assessment.
func (h *AssessmentHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.TeacherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "a teacher account is required"))
		return
	}
	var req service.SubmitMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.submissions.Submit(c.Request.Context(), claims.TeacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSubmission(string(submission.DOSStatus))
	h.metrics.RecordAnomalies(len(submission.Anomalies))
	response.Created(c, submission)
}

// List returns submissions matching the query filters.
func (h *AssessmentHandler) List(c *gin.Context) {
	filter := models.SubmissionFilter{
		TeacherID: c.Query("teacher_id"),
		TermID:    c.Query("term_id"),
		ClassID:   c.Query("class_id"),
		Status:    models.DOSStatus(c.Query("status")),
	}
	if raw := c.Query("key"); raw != "" {
		key, err := models.ParseAssessmentKey(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assessment key"))
			return
		}
		filter = filter.WithKey(key)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher {
		filter.TeacherID = claims.TeacherID
	}
	submissions, err := h.submissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Get returns one submission with its entries.
func (h *AssessmentHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Review applies a DOS decision to a pending submission.
func (h *AssessmentHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.submissions.Review(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordSubmission(string(submission.DOSStatus))
	response.JSON(c, http.StatusOK, submission, nil)
}

// Summary aggregates one submission into a class assessment summary.
func (h *AssessmentHandler) Summary(c *gin.Context) {
	summary, err := h.submissions.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassTermSummaries aggregates every approved submission of a class
// within a term.
func (h *AssessmentHandler) ClassTermSummaries(c *gin.Context) {
	result, err := h.submissions.SummarizeClassTerm(c.Request.Context(), c.Query("class_id"), c.Query("term_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
