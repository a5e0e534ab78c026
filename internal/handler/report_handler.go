package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/service"
	"github.com/shulepro/shulepro-api/pkg/response"
)

var exportContentTypes = map[service.ExportFormat]string{
	service.FormatCSV:  "text/csv",
	service.FormatPDF:  "application/pdf",
	service.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ReportHandler handles report card and export endpoints.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// StudentReportCard returns a student's approved results for a term.
func (h *ReportHandler) StudentReportCard(c *gin.Context) {
	card, err := h.service.StudentReportCard(c.Request.Context(), c.Param("studentId"), c.Query("term_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// ExportClass streams the class/term summary table in the requested format.
func (h *ReportHandler) ExportClass(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	raw, filename, err := h.service.ExportClassTerm(c.Request.Context(), c.Param("classId"), c.Query("term_id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, exportContentTypes[format], raw)
}

// EnqueueExport schedules an asynchronous class export.
func (h *ReportHandler) EnqueueExport(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	status, err := h.service.EnqueueClassExport(c.Request.Context(), c.Param("classId"), c.Query("term_id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status, nil)
}

// ExportStatus reports the state of an asynchronous export job.
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	status, err := h.service.JobStatus(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
