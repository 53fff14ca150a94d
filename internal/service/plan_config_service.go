package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type planConfigRepository interface {
	Get(ctx context.Context) (*models.PlanConfig, error)
	Update(ctx context.Context, cfg *models.PlanConfig) error
}

// UpdatePlanConfigRequest holds payload for tuning billing parameters.
type UpdatePlanConfigRequest struct {
	OneTimeAmount           int64 `json:"one_time_amount" validate:"required,gt=0"`
	MonthlyAmount           int64 `json:"monthly_amount" validate:"required,gt=0"`
	InstallmentAmount       int64 `json:"installment_amount" validate:"required,gt=0"`
	InstallmentIntervalMths int   `json:"installment_interval_months" validate:"required,min=1,max=12"`
	ReminderDays            int   `json:"reminder_days" validate:"min=0,max=365"`
}

// PlanConfigService manages the tunable billing parameters. Updates apply to
// future derivations only; nothing is recomputed eagerly.
type PlanConfigService struct {
	repo      planConfigRepository
	audit     paymentAuditor
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPlanConfigService constructs the plan config service.
func NewPlanConfigService(repo planConfigRepository, audit paymentAuditor, validate *validator.Validate, logger *zap.Logger) *PlanConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanConfigService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Get returns the current configuration, defaults included.
func (s *PlanConfigService) Get(ctx context.Context) (*models.PlanConfig, error) {
	cfg, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}
	return cfg, nil
}

// Update validates and persists new billing parameters.
func (s *PlanConfigService) Update(ctx context.Context, req UpdatePlanConfigRequest) (*models.PlanConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan config payload")
	}
	for _, amount := range []int64{req.OneTimeAmount, req.MonthlyAmount, req.InstallmentAmount} {
		if amount > billing.MaxPaymentAmount {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("plan amount exceeds the maximum of %d", billing.MaxPaymentAmount))
		}
	}

	before, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}

	cfg := &models.PlanConfig{
		OneTimeAmount:           req.OneTimeAmount,
		MonthlyAmount:           req.MonthlyAmount,
		InstallmentAmount:       req.InstallmentAmount,
		InstallmentIntervalMths: req.InstallmentIntervalMths,
		ReminderDays:            req.ReminderDays,
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update plan config")
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionConfigUpdate, "plan_config", nil, before, cfg)
	}
	return cfg, nil
}

// Reset restores the built-in defaults.
func (s *PlanConfigService) Reset(ctx context.Context) (*models.PlanConfig, error) {
	before, err := s.repo.Get(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan config")
	}

	defaults := models.DefaultPlanConfig()
	if err := s.repo.Update(ctx, &defaults); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset plan config")
	}

	if s.audit != nil {
		s.audit.Record(models.AuditActionConfigUpdate, "plan_config", nil, before, &defaults)
	}
	return &defaults, nil
}
