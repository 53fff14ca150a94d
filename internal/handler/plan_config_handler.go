package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/service"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// PlanConfigHandler exposes billing parameter endpoints.
type PlanConfigHandler struct {
	config *service.PlanConfigService
}

// NewPlanConfigHandler constructs PlanConfigHandler.
func NewPlanConfigHandler(config *service.PlanConfigService) *PlanConfigHandler {
	return &PlanConfigHandler{config: config}
}

// Get godoc
// @Summary Get billing plan configuration
// @Tags PlanConfig
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plan-config [get]
func (h *PlanConfigHandler) Get(c *gin.Context) {
	cfg, err := h.config.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Update billing plan configuration
// @Tags PlanConfig
// @Accept json
// @Produce json
// @Param payload body service.UpdatePlanConfigRequest true "Config payload"
// @Success 200 {object} response.Envelope
// @Router /plan-config [put]
func (h *PlanConfigHandler) Update(c *gin.Context) {
	var req service.UpdatePlanConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cfg, err := h.config.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Reset godoc
// @Summary Reset billing plan configuration to defaults
// @Tags PlanConfig
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plan-config/reset [post]
func (h *PlanConfigHandler) Reset(c *gin.Context) {
	cfg, err := h.config.Reset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
