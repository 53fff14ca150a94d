package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// SummaryHandler exposes dashboard summary and export endpoints.
type SummaryHandler struct {
	summary *service.SummaryService
	export  *service.ExportService
}

// NewSummaryHandler constructs SummaryHandler.
func NewSummaryHandler(summary *service.SummaryService, export *service.ExportService) *SummaryHandler {
	return &SummaryHandler{summary: summary, export: export}
}

// Summary godoc
// @Summary Billing summary across all students
// @Tags Summary
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /summary [get]
func (h *SummaryHandler) Summary(c *gin.Context) {
	summary, err := h.summary.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ExportPayments godoc
// @Summary Export payment history as CSV or PDF
// @Tags Summary
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param student query string false "Filter by student"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Router /exports/payments [get]
func (h *SummaryHandler) ExportPayments(c *gin.Context) {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.export.PaymentHistory(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, result)
}

// ExportOverdue godoc
// @Summary Export overdue student report as CSV or PDF
// @Tags Summary
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /exports/overdue [get]
func (h *SummaryHandler) ExportOverdue(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.export.OverdueReport(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, result)
}

func writeExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
