package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type recomputeStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
	UpdateBillingFields(ctx context.Context, id string, status models.PaymentStatus, nextDue *time.Time) error
	BulkUpdateStatuses(ctx context.Context, reminderDays int, today time.Time) (int64, error)
}

type recomputePaymentRepository interface {
	LastPaymentDate(ctx context.Context, studentID string) (*time.Time, error)
}

type planConfigProvider interface {
	Get(ctx context.Context) (*models.PlanConfig, error)
}

// RecomputeService rederives the cached next_due_date and payment_status
// fields from the persisted billing inputs. It is the only writer of those
// fields outside student creation.
type RecomputeService struct {
	students recomputeStudentRepository
	payments recomputePaymentRepository
	config   planConfigProvider
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecomputeService constructs a RecomputeService. A nil now falls back to
// the wall clock; tests inject a fixed clock.
func NewRecomputeService(students recomputeStudentRepository, payments recomputePaymentRepository, config planConfigProvider, metrics *MetricsService, logger *zap.Logger, now func() time.Time) *RecomputeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RecomputeService{students: students, payments: payments, config: config, metrics: metrics, logger: logger, now: now}
}

// RecomputeStudent rederives one student's due date and status, persisting
// only when something actually changed. It reports whether a write happened.
func (s *RecomputeService) RecomputeStudent(ctx context.Context, student *models.Student) (bool, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}

	lastPayment, err := s.payments.LastPaymentDate(ctx, student.ID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last payment date")
	}

	nextDue, err := billing.NextDueDate(student.PlanType, student.EnrollmentDate, lastPayment, cfg.InstallmentIntervalMths)
	if err != nil {
		return false, err
	}
	status, err := billing.ClassifyStatus(student.PlanType, student.PlanAmount, student.PaidAmount,
		student.InstallmentCount, nextDue, student.EnrollmentDate, cfg.ReminderDays, s.now())
	if err != nil {
		return false, err
	}

	if status == student.PaymentStatus && equalDatePtr(nextDue, student.NextDueDate) {
		return false, nil
	}
	if err := s.students.UpdateBillingFields(ctx, student.ID, status, nextDue); err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist recomputed billing fields")
	}
	student.PaymentStatus = status
	student.NextDueDate = nextDue
	return true, nil
}

// RecomputeByID loads a student and recomputes them.
func (s *RecomputeService) RecomputeByID(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.RecomputeStudent(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

// RecomputeAll walks every student row by row. One student's failure never
// aborts the batch; failures are accumulated and reported alongside the
// update counts.
func (s *RecomputeService) RecomputeAll(ctx context.Context) (*models.BatchResult, error) {
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	result := &models.BatchResult{}
	for i := range students {
		changed, err := s.RecomputeStudent(ctx, &students[i])
		if err != nil {
			s.logger.Warn("recompute failed for student",
				zap.String("student_id", students[i].ID), zap.Error(err))
			result.Failures = append(result.Failures, models.BatchFailure{
				StudentID: students[i].ID,
				Error:     err.Error(),
			})
			continue
		}
		if changed {
			result.Updated++
		} else {
			result.Unchanged++
		}
	}
	s.metrics.RecordRecompute("row", int64(result.Updated))
	return result, nil
}

// RecomputeAllBulk reclassifies every student in a single UPDATE statement.
// It only rewrites payment_status; due dates are maintained by the payment
// path and the row-by-row recompute. Both strategies derive from the same
// classification rule, so a bulk pass and a row-by-row pass over unchanged
// data agree.
func (s *RecomputeService) RecomputeAllBulk(ctx context.Context) (int64, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}
	updated, err := s.students.BulkUpdateStatuses(ctx, cfg.ReminderDays, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk recompute failed")
	}
	s.metrics.RecordRecompute("bulk", updated)
	s.logger.Info("bulk status recompute finished", zap.Int64("updated", updated))
	return updated, nil
}

func equalDatePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return billing.DateOnly(*a).Equal(billing.DateOnly(*b))
}
