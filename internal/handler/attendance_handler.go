package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/service"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
	"github.com/shulepro/shulepro-api/pkg/response"
)

// AttendanceHandler handles class register endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Record upserts one day's register for a class.
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.TeacherID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "a teacher account is required"))
		return
	}
	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.Record(c.Request.Context(), claims.TeacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Get returns the register for a class and date.
func (h *AttendanceHandler) Get(c *gin.Context) {
	record, err := h.service.GetByClassAndDate(c.Request.Context(), c.Param("classId"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// StudentSummary tallies a student's attendance over a date range.
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("studentId"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
