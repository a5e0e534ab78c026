package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shulepro/shulepro-api/internal/service"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
	"github.com/shulepro/shulepro-api/pkg/response"
)

// GradingPolicyHandler handles grading-scale endpoints.
type GradingPolicyHandler struct {
	service *service.GradingService
}

// NewGradingPolicyHandler constructs a grading policy handler.
func NewGradingPolicyHandler(svc *service.GradingService) *GradingPolicyHandler {
	return &GradingPolicyHandler{service: svc}
}

// List returns all grading policies.
func (h *GradingPolicyHandler) List(c *gin.Context) {
	policies, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policies, nil)
}

// Get returns one grading policy.
func (h *GradingPolicyHandler) Get(c *gin.Context) {
	policy, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Save creates or replaces a grading policy.
func (h *GradingPolicyHandler) Save(c *gin.Context) {
	var req service.SavePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	policy, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Delete removes a non-default grading policy.
func (h *GradingPolicyHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
