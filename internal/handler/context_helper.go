package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/middleware"
	"github.com/shulepro/shulepro-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// teacherIDFromContext resolves the acting teacher: an explicit query
// parameter wins for DOS/admin callers, otherwise the token's teacher id.
func teacherIDFromContext(c *gin.Context) string {
	if id := c.Query("teacher_id"); id != "" {
		if claims := claimsFromContext(c); claims != nil && claims.Role != models.RoleTeacher {
			return id
		}
	}
	if claims := claimsFromContext(c); claims != nil {
		return claims.TeacherID
	}
	return ""
}
