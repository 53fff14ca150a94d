package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

const (
	summaryCacheKey     = "billing:summary"
	summaryCachePattern = "billing:summary*"
	recentPaymentsLimit = 10
)

type summaryStudentRepository interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

type summaryPaymentRepository interface {
	Recent(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SummaryService computes the dashboard-level billing summary: totals, plan
// and status breakdowns, recent payments. The result is cached; payment and
// student mutations invalidate it.
type SummaryService struct {
	students summaryStudentRepository
	payments summaryPaymentRepository
	cache    summaryCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(students summaryStudentRepository, payments summaryPaymentRepository, cache summaryCache, cacheTTL time.Duration, logger *zap.Logger, now func() time.Time) *SummaryService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SummaryService{students: students, payments: payments, cache: cache, cacheTTL: cacheTTL, logger: logger, now: now}
}

// Summary returns the billing summary, serving from cache when possible.
func (s *SummaryService) Summary(ctx context.Context) (*models.PaymentSummary, error) {
	if s.cache != nil {
		var cached models.PaymentSummary
		hit, err := s.cache.Get(ctx, summaryCacheKey, &cached)
		if err == nil && hit {
			return &cached, nil
		}
	}

	summary, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, summaryCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache billing summary", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *SummaryService) compute(ctx context.Context) (*models.PaymentSummary, error) {
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	now := s.now()
	summary := &models.PaymentSummary{
		PlanBreakdown: make(map[models.PlanType]models.PlanStats, 3),
	}
	for i := range students {
		student := &students[i]
		expected, err := billing.ExpectedAmount(student.PlanType, student.PlanAmount,
			student.EnrollmentDate, student.InstallmentCount, now)
		if err != nil {
			// A corrupt plan type on one row must not sink the whole summary.
			s.logger.Warn("skipping student in summary",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}

		summary.TotalStudents++
		summary.TotalPaidAmount += student.PaidAmount
		summary.TotalExpectedAmount += expected

		stats := summary.PlanBreakdown[student.PlanType]
		stats.TotalStudents++
		stats.TotalPaid += student.PaidAmount
		stats.TotalExpected += expected
		switch student.PaymentStatus {
		case models.StatusPaid:
			summary.StudentsPaid++
			stats.StudentsPaid++
		case models.StatusPending:
			summary.StudentsPending++
			stats.StudentsPending++
		case models.StatusOverdue:
			summary.StudentsOverdue++
			stats.StudentsOverdue++
		case models.StatusDueSoon:
			summary.StudentsDueSoon++
			stats.StudentsDueSoon++
		}
		summary.PlanBreakdown[student.PlanType] = stats
	}

	recent, err := s.payments.Recent(ctx, recentPaymentsLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent payments")
	}
	summary.RecentPayments = recent
	return summary, nil
}
