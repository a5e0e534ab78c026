package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/middleware"
	"github.com/shulepro/shulepro-api/internal/models"
	"github.com/shulepro/shulepro-api/internal/service"
)

// Handlers groups every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Assessment *AssessmentHandler
	Attendance *AttendanceHandler
	Grading    *GradingPolicyHandler
	Teacher    *TeacherHandler
	Class      *ClassHandler
	Subject    *SubjectHandler
	Term       *TermHandler
	Exam       *ExamHandler
	Student    *StudentHandler
	Settings   *SettingsHandler
	Report     *ReportHandler
	Metrics    *MetricsHandler
}

// RegisterRoutes mounts the API under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, authService *service.AuthService) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)
	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/auth/me", h.Auth.Me)

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleDOS, models.RoleAdmin)
	dos := middleware.RequireRoles(models.RoleDOS, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	// Responsibility and submission lifecycle.
	authed.GET("/assessments/responsibilities", staff, h.Assessment.Responsibilities)
	authed.GET("/assessments/reconcile", staff, h.Assessment.Reconcile)
	authed.POST("/assessments/submissions", middleware.RequireRoles(models.RoleTeacher), h.Assessment.Submit)
	authed.GET("/assessments/submissions", staff, h.Assessment.List)
	authed.GET("/assessments/submissions/:id", staff, h.Assessment.Get)
	authed.PATCH("/assessments/submissions/:id/review", dos, h.Assessment.Review)
	authed.GET("/assessments/submissions/:id/summary", staff, h.Assessment.Summary)
	authed.GET("/assessments/summaries", dos, h.Assessment.ClassTermSummaries)

	// Attendance registers.
	authed.POST("/attendance", middleware.RequireRoles(models.RoleTeacher), h.Attendance.Record)
	authed.GET("/attendance/classes/:classId", staff, h.Attendance.Get)
	authed.GET("/attendance/students/:studentId/summary", staff, h.Attendance.StudentSummary)

	// Grading policies.
	authed.GET("/grading-policies", staff, h.Grading.List)
	authed.GET("/grading-policies/:id", staff, h.Grading.Get)
	authed.PUT("/grading-policies", dos, h.Grading.Save)
	authed.DELETE("/grading-policies/:id", dos, h.Grading.Delete)

	// Catalog resources.
	authed.GET("/teachers", dos, h.Teacher.List)
	authed.GET("/teachers/:id", staff, h.Teacher.Get)
	authed.POST("/teachers", admin, h.Teacher.Create)
	authed.PUT("/teachers/:id", admin, h.Teacher.Update)
	authed.GET("/teachers/:id/assignments", staff, h.Teacher.Assignments)
	authed.PUT("/teachers/:id/assignments", dos, h.Teacher.ReplaceAssignments)

	authed.GET("/classes", staff, h.Class.List)
	authed.GET("/classes/:id", staff, h.Class.Get)
	authed.GET("/classes/:id/students", staff, h.Class.Students)
	authed.POST("/classes", admin, h.Class.Create)
	authed.PUT("/classes/:id", admin, h.Class.Update)
	authed.DELETE("/classes/:id", admin, h.Class.Delete)

	authed.GET("/subjects", staff, h.Subject.List)
	authed.GET("/subjects/:id", staff, h.Subject.Get)
	authed.POST("/subjects", admin, h.Subject.Create)
	authed.PUT("/subjects/:id", admin, h.Subject.Update)
	authed.DELETE("/subjects/:id", admin, h.Subject.Delete)

	authed.GET("/terms", staff, h.Term.List)
	authed.GET("/terms/:id", staff, h.Term.Get)
	authed.POST("/terms", admin, h.Term.Create)
	authed.PUT("/terms/:id", admin, h.Term.Update)

	authed.GET("/exams", staff, h.Exam.ListByTerm)
	authed.GET("/exams/:id", staff, h.Exam.Get)
	authed.POST("/exams", dos, h.Exam.Create)
	authed.PUT("/exams/:id", dos, h.Exam.Update)
	authed.DELETE("/exams/:id", dos, h.Exam.Delete)

	authed.GET("/students/:id", staff, h.Student.Get)
	authed.POST("/students", admin, h.Student.Create)
	authed.PUT("/students/:id", admin, h.Student.Update)

	authed.GET("/settings", staff, h.Settings.Get)
	authed.PUT("/settings", admin, h.Settings.Update)

	// Reports and exports.
	authed.GET("/reports/students/:studentId", staff, h.Report.StudentReportCard)
	authed.GET("/reports/classes/:classId/export", dos, h.Report.ExportClass)
	authed.POST("/reports/classes/:classId/export", dos, h.Report.EnqueueExport)
	authed.GET("/reports/exports/:jobId", dos, h.Report.ExportStatus)
}
