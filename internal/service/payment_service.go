package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type paymentRepository interface {
	RecordWithAggregate(ctx context.Context, payment *models.PaymentTransaction) (*models.Student, error)
	DeleteWithAggregate(ctx context.Context, paymentID string) (*models.PaymentTransaction, *models.Student, bool, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentTransaction, int, error)
	Statistics(ctx context.Context, filter models.PaymentFilter) (*models.PaymentStatistics, error)
}

type paymentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type studentRecomputer interface {
	RecomputeStudent(ctx context.Context, student *models.Student) (bool, error)
}

type paymentAuditor interface {
	Record(action, resource string, resourceID *string, oldValues, newValues interface{})
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// RecordPaymentRequest holds payload for recording a payment.
type RecordPaymentRequest struct {
	StudentID     string    `json:"student_id" validate:"required"`
	Amount        int64     `json:"amount" validate:"required,gt=0"`
	PaymentDate   time.Time `json:"payment_date" validate:"required"`
	PaymentMethod string    `json:"payment_method" validate:"required"`
	Notes         *string   `json:"notes"`
}

// PaymentService handles payment recording, deletion and history queries.
//
// Recording is two-phase: the transaction insert plus paid_amount bump commit
// atomically, then the derived billing fields are recomputed in a separate
// write. A recompute failure is logged but does not undo the committed
// payment; the periodic recompute job reconverges the cached status.
type PaymentService struct {
	payments  paymentRepository
	students  paymentStudentReader
	recompute studentRecomputer
	audit     paymentAuditor
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment service.
func NewPaymentService(payments paymentRepository, students paymentStudentReader, recompute studentRecomputer, audit paymentAuditor, cache cacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{payments: payments, students: students, recompute: recompute, audit: audit, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// RecordPayment validates and applies a payment to a student.
func (s *PaymentService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*models.PaymentTransaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.Amount > billing.MaxPaymentAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("amount exceeds the maximum of %d", billing.MaxPaymentAmount))
	}
	method, ok := models.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment method")
	}

	// A missing student is a distinct failure from an invalid payload.
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	payment := &models.PaymentTransaction{
		StudentID:     req.StudentID,
		Amount:        req.Amount,
		PaymentDate:   billing.DateOnly(req.PaymentDate),
		PaymentMethod: method,
		Notes:         req.Notes,
	}
	student, err := s.payments.RecordWithAggregate(ctx, payment)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if _, err := s.recompute.RecomputeStudent(ctx, student); err != nil {
		s.logger.Error("payment recorded but status recompute failed; reconciliation will converge it",
			zap.String("student_id", student.ID), zap.String("payment_id", payment.ID), zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionPaymentCreate, "payment", &payment.ID, nil, payment)
	}
	s.metrics.RecordPayment(payment.PaymentMethod)
	s.invalidateSummary(ctx)
	return payment, nil
}

// DeletePayment removes a payment and unwinds its effect on the student.
// Deleting an absent payment reports false without error.
func (s *PaymentService) DeletePayment(ctx context.Context, paymentID string) (bool, error) {
	if paymentID == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "payment id is required")
	}

	payment, student, found, err := s.payments.DeleteWithAggregate(ctx, paymentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	if !found {
		return false, nil
	}

	if _, err := s.recompute.RecomputeStudent(ctx, student); err != nil {
		s.logger.Error("payment deleted but status recompute failed; reconciliation will converge it",
			zap.String("student_id", student.ID), zap.String("payment_id", paymentID), zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionPaymentDelete, "payment", &paymentID, payment, nil)
	}
	s.metrics.RecordPaymentDeletion()
	s.invalidateSummary(ctx)
	return true, nil
}

// History returns payments matching the filter with pagination metadata.
func (s *PaymentService) History(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentTransaction, *models.Pagination, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Statistics aggregates payment counts and totals for the filter.
func (s *PaymentService) Statistics(ctx context.Context, filter models.PaymentFilter) (*models.PaymentStatistics, error) {
	stats, err := s.payments.Statistics(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate payments")
	}
	return stats, nil
}

func (s *PaymentService) invalidateSummary(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, summaryCachePattern)
	}
}
