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

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	NextBusinessID(ctx context.Context) (string, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) (bool, error)
	ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Student, error)
}

// CreateStudentRequest holds payload for enrolling a student. PlanAmount zero
// means "use the configured default for the plan".
type CreateStudentRequest struct {
	FullName         string    `json:"full_name" validate:"required"`
	GroupName        string    `json:"group_name"`
	PlanType         string    `json:"plan_type" validate:"required"`
	PlanAmount       int64     `json:"plan_amount" validate:"gte=0"`
	InstallmentCount *int      `json:"installment_count"`
	EnrollmentDate   time.Time `json:"enrollment_date" validate:"required"`
}

// UpdateStudentRequest holds payload for editing a student's profile.
type UpdateStudentRequest struct {
	FullName       string    `json:"full_name" validate:"required"`
	GroupName      string    `json:"group_name"`
	EnrollmentDate time.Time `json:"enrollment_date" validate:"required"`
}

// ChangePlanRequest switches a student to a different billing plan. The paid
// amount carries over unchanged; only the expectation changes.
type ChangePlanRequest struct {
	PlanType         string `json:"plan_type" validate:"required"`
	PlanAmount       int64  `json:"plan_amount" validate:"gte=0"`
	InstallmentCount *int   `json:"installment_count"`
}

const maxInstallmentCount = 12

// validateInstallmentCount enforces the plan's count rule: installment
// plans must carry a count of 1-12, every other plan ignores the field.
// The classifier's default-count fallback exists for legacy rows only
// and must never be reachable through these write paths.
func validateInstallmentCount(plan models.PlanType, count *int) error {
	if plan != models.PlanInstallment {
		return nil
	}
	if count == nil {
		return appErrors.Clone(appErrors.ErrValidation, "installment plan requires an installment count")
	}
	if *count < 1 || *count > maxInstallmentCount {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("installment count must be between 1 and %d", maxInstallmentCount))
	}
	return nil
}

// StudentService handles student enrollment and profile use-cases.
type StudentService struct {
	repo      studentRepository
	config    planConfigProvider
	recompute studentRecomputer
	audit     paymentAuditor
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, config planConfigProvider, recompute studentRecomputer, audit paymentAuditor, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &StudentService{repo: repo, config: config, recompute: recompute, audit: audit, cache: cache, validator: validate, logger: logger, now: now}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != "" {
		if _, ok := models.ParsePaymentStatus(filter.Status); !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment status filter")
		}
	}
	if filter.PlanType != "" {
		if _, ok := models.ParsePlanType(filter.PlanType); !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown plan type filter")
		}
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create enrolls a new student with derived billing fields already in place.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	plan, ok := models.ParsePlanType(req.PlanType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown plan type")
	}
	if err := validateInstallmentCount(plan, req.InstallmentCount); err != nil {
		return nil, err
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}
	amount := req.PlanAmount
	if amount == 0 {
		amount, _ = cfg.AmountForPlan(plan)
	}
	if amount > billing.MaxPaymentAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("plan amount exceeds the maximum of %d", billing.MaxPaymentAmount))
	}

	id, err := s.repo.NextBusinessID(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate student id")
	}

	enrollment := billing.DateOnly(req.EnrollmentDate)
	nextDue, err := billing.NextDueDate(plan, enrollment, nil, cfg.InstallmentIntervalMths)
	if err != nil {
		return nil, err
	}
	status, err := billing.ClassifyStatus(plan, amount, 0, req.InstallmentCount, nextDue, enrollment, cfg.ReminderDays, s.now())
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		ID:               id,
		FullName:         req.FullName,
		GroupName:        req.GroupName,
		PlanType:         plan,
		PlanAmount:       amount,
		InstallmentCount: req.InstallmentCount,
		EnrollmentDate:   enrollment,
		NextDueDate:      nextDue,
		PaymentStatus:    status,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionStudentCreate, "student", &student.ID, nil, student)
	}
	s.invalidateSummary(ctx)
	return student, nil
}

// Update edits profile fields and recomputes billing state, since a changed
// enrollment date moves the payment schedule.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *student

	student.FullName = req.FullName
	student.GroupName = req.GroupName
	student.EnrollmentDate = billing.DateOnly(req.EnrollmentDate)
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	if _, err := s.recompute.RecomputeStudent(ctx, student); err != nil {
		s.logger.Error("student updated but recompute failed", zap.String("student_id", id), zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionStudentUpdate, "student", &id, before, student)
	}
	s.invalidateSummary(ctx)
	return student, nil
}

// ChangePlan moves a student onto a different plan and rederives their
// billing state against the new expectation.
func (s *StudentService) ChangePlan(ctx context.Context, id string, req ChangePlanRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	plan, ok := models.ParsePlanType(req.PlanType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown plan type")
	}
	if err := validateInstallmentCount(plan, req.InstallmentCount); err != nil {
		return nil, err
	}

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *student

	amount := req.PlanAmount
	if amount == 0 {
		cfg, err := s.config.Get(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
		}
		amount, _ = cfg.AmountForPlan(plan)
	}
	if amount > billing.MaxPaymentAmount {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("plan amount exceeds the maximum of %d", billing.MaxPaymentAmount))
	}

	student.PlanType = plan
	student.PlanAmount = amount
	student.InstallmentCount = req.InstallmentCount
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change plan")
	}
	if _, err := s.recompute.RecomputeStudent(ctx, student); err != nil {
		s.logger.Error("plan changed but recompute failed", zap.String("student_id", id), zap.Error(err))
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionPlanChange, "student", &id, before, student)
	}
	s.invalidateSummary(ctx)
	return student, nil
}

// Delete removes a student and their payment history.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionStudentDelete, "student", &id, student, nil)
	}
	s.invalidateSummary(ctx)
	return nil
}

// OverdueReport lists students classified overdue with how far behind they
// are, sorted by the repository on next due date.
func (s *StudentService) OverdueReport(ctx context.Context) ([]models.OverdueStudent, error) {
	students, err := s.repo.ListByStatus(ctx, models.StatusOverdue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overdue students")
	}

	now := s.now()
	report := make([]models.OverdueStudent, 0, len(students))
	for i := range students {
		student := &students[i]
		expected, err := billing.ExpectedAmount(student.PlanType, student.PlanAmount,
			student.EnrollmentDate, student.InstallmentCount, now)
		if err != nil {
			s.logger.Warn("skipping student in overdue report",
				zap.String("student_id", student.ID), zap.Error(err))
			continue
		}
		outstanding := expected - student.PaidAmount
		if outstanding < 0 {
			outstanding = 0
		}

		// One-time plans age from enrollment; recurring plans from the due date.
		var daysOverdue int
		if student.PlanType == models.PlanOneTime {
			daysOverdue = billing.DaysBetween(student.EnrollmentDate, now)
		} else if student.NextDueDate != nil {
			daysOverdue = billing.DaysBetween(*student.NextDueDate, now)
		} else {
			daysOverdue = billing.DaysBetween(student.EnrollmentDate, now)
		}
		if daysOverdue < 0 {
			daysOverdue = 0
		}

		report = append(report, models.OverdueStudent{
			StudentID:      student.ID,
			FullName:       student.FullName,
			PlanType:       student.PlanType,
			ExpectedAmount: expected,
			PaidAmount:     student.PaidAmount,
			OverdueAmount:  outstanding,
			NextDueDate:    student.NextDueDate,
			DaysOverdue:    daysOverdue,
		})
	}
	return report, nil
}

func (s *StudentService) invalidateSummary(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, summaryCachePattern)
	}
}
