package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered document ready to stream to the client.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

type exportPaymentLister interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentTransaction, int, error)
}

type overdueReporter interface {
	OverdueReport(ctx context.Context) ([]models.OverdueStudent, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders payment history and overdue reports as CSV or PDF.
// Documents are built in memory and streamed directly; nothing is persisted.
type ExportService struct {
	payments exportPaymentLister
	overdue  overdueReporter
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(payments exportPaymentLister, overdue overdueReporter, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{payments: payments, overdue: overdue, csv: csv, pdf: pdf, logger: logger}
}

// PaymentHistory renders the payments matching the filter. Pagination is
// widened so the export covers the full filtered range, not a single page.
func (s *ExportService) PaymentHistory(ctx context.Context, filter models.PaymentFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = 100
	var all []models.PaymentTransaction
	for {
		page, total, err := s.payments.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments for export")
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			break
		}
		filter.Page++
	}

	data := export.Dataset{
		Headers: []string{"Payment ID", "Student ID", "Amount", "Date", "Method", "Notes"},
	}
	for _, p := range all {
		notes := ""
		if p.Notes != nil {
			notes = *p.Notes
		}
		data.Rows = append(data.Rows, map[string]string{
			"Payment ID": p.ID,
			"Student ID": p.StudentID,
			"Amount":     strconv.FormatInt(p.Amount, 10),
			"Date":       p.PaymentDate.Format(billing.DateFormat),
			"Method":     string(p.PaymentMethod),
			"Notes":      notes,
		})
	}
	return s.render(data, "Payment History", "payment_history", format)
}

// OverdueReport renders the current overdue student list.
func (s *ExportService) OverdueReport(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	students, err := s.overdue.OverdueReport(ctx)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Headers: []string{"Student ID", "Name", "Plan", "Expected", "Paid", "Outstanding", "Next Due", "Days Overdue"},
	}
	for _, o := range students {
		due := ""
		if o.NextDueDate != nil {
			due = o.NextDueDate.Format(billing.DateFormat)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student ID":   o.StudentID,
			"Name":         o.FullName,
			"Plan":         string(o.PlanType),
			"Expected":     strconv.FormatInt(o.ExpectedAmount, 10),
			"Paid":         strconv.FormatInt(o.PaidAmount, 10),
			"Outstanding":  strconv.FormatInt(o.OverdueAmount, 10),
			"Next Due":     due,
			"Days Overdue": strconv.Itoa(o.DaysOverdue),
		})
	}
	return s.render(data, "Overdue Students", "overdue_report", format)
}

func (s *ExportService) render(data export.Dataset, title, baseName string, format ExportFormat) (*ExportResult, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("%s_%s.csv", baseName, stamp),
		}, nil
	case FormatPDF:
		content, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("%s_%s.pdf", baseName, stamp),
		}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unknown export format")
}
