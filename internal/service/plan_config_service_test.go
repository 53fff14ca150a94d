package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

func TestPlanConfigServiceGetDefaults(t *testing.T) {
	svc := NewPlanConfigService(&mockConfig{cfg: models.DefaultPlanConfig()}, nil, validator.New(), zap.NewNop())

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMonthlyAmount, cfg.MonthlyAmount)
	assert.Equal(t, models.DefaultReminderDays, cfg.ReminderDays)
}

func TestPlanConfigServiceUpdate(t *testing.T) {
	repo := &mockConfig{cfg: models.DefaultPlanConfig()}
	audit := &mockAuditor{}
	svc := NewPlanConfigService(repo, audit, validator.New(), zap.NewNop())

	cfg, err := svc.Update(context.Background(), UpdatePlanConfigRequest{
		OneTimeAmount:           7000,
		MonthlyAmount:           900,
		InstallmentAmount:       3000,
		InstallmentIntervalMths: 2,
		ReminderDays:            14,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), cfg.MonthlyAmount)
	assert.Equal(t, 2, cfg.InstallmentIntervalMths)
	require.NotNil(t, repo.updated)
	assert.Equal(t, []string{models.AuditActionConfigUpdate}, audit.actions)
}

func TestPlanConfigServiceUpdateValidation(t *testing.T) {
	svc := NewPlanConfigService(&mockConfig{cfg: models.DefaultPlanConfig()}, nil, validator.New(), zap.NewNop())

	cases := []struct {
		name string
		req  UpdatePlanConfigRequest
	}{
		{"zero amount", UpdatePlanConfigRequest{OneTimeAmount: 0, MonthlyAmount: 900, InstallmentAmount: 3000, InstallmentIntervalMths: 3, ReminderDays: 7}},
		{"interval too long", UpdatePlanConfigRequest{OneTimeAmount: 7000, MonthlyAmount: 900, InstallmentAmount: 3000, InstallmentIntervalMths: 13, ReminderDays: 7}},
		{"reminder too long", UpdatePlanConfigRequest{OneTimeAmount: 7000, MonthlyAmount: 900, InstallmentAmount: 3000, InstallmentIntervalMths: 3, ReminderDays: 400}},
		{"amount over cap", UpdatePlanConfigRequest{OneTimeAmount: billing.MaxPaymentAmount + 1, MonthlyAmount: 900, InstallmentAmount: 3000, InstallmentIntervalMths: 3, ReminderDays: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		})
	}
}

func TestPlanConfigServiceReset(t *testing.T) {
	custom := models.PlanConfig{
		OneTimeAmount: 9000, MonthlyAmount: 999, InstallmentAmount: 4000,
		InstallmentIntervalMths: 6, ReminderDays: 30,
	}
	repo := &mockConfig{cfg: custom}
	svc := NewPlanConfigService(repo, nil, validator.New(), zap.NewNop())

	cfg, err := svc.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPlanConfig().MonthlyAmount, cfg.MonthlyAmount)
	assert.Equal(t, models.DefaultPlanConfig().ReminderDays, cfg.ReminderDays)
}
