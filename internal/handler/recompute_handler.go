package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// RecomputeHandler exposes billing status recomputation endpoints.
type RecomputeHandler struct {
	recompute *service.RecomputeService
}

// NewRecomputeHandler constructs RecomputeHandler.
func NewRecomputeHandler(recompute *service.RecomputeService) *RecomputeHandler {
	return &RecomputeHandler{recompute: recompute}
}

// RecomputeStudent godoc
// @Summary Recompute billing status for one student
// @Tags Recompute
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /recompute/students/{id} [post]
func (h *RecomputeHandler) RecomputeStudent(c *gin.Context) {
	student, err := h.recompute.RecomputeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// RecomputeAll godoc
// @Summary Recompute billing status for every student row by row
// @Tags Recompute
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /recompute [post]
func (h *RecomputeHandler) RecomputeAll(c *gin.Context) {
	result, err := h.recompute.RecomputeAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecomputeBulk godoc
// @Summary Recompute billing statuses in a single SQL statement
// @Tags Recompute
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /recompute/bulk [post]
func (h *RecomputeHandler) RecomputeBulk(c *gin.Context) {
	updated, err := h.recompute.RecomputeAllBulk(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
