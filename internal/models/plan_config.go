package models

import "time"

// Built-in plan config defaults, used only when no stored config exists.
const (
	DefaultOneTimeAmount     int64 = 6000
	DefaultMonthlyAmount     int64 = 850
	DefaultInstallmentAmount int64 = 2850
	DefaultInstallmentMonths       = 3
	DefaultReminderDays            = 7
)

// PlanConfig is the single logical row of tunable billing parameters.
// The per-plan amounts seed new students only; recomputation of existing
// students always uses the student's own plan_amount.
type PlanConfig struct {
	OneTimeAmount           int64     `db:"one_time_amount" json:"one_time_amount"`
	MonthlyAmount           int64     `db:"monthly_amount" json:"monthly_amount"`
	InstallmentAmount       int64     `db:"installment_amount" json:"installment_amount"`
	InstallmentIntervalMths int       `db:"installment_interval_months" json:"installment_interval_months"`
	ReminderDays            int       `db:"reminder_days" json:"reminder_days"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultPlanConfig returns the built-in configuration.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		OneTimeAmount:           DefaultOneTimeAmount,
		MonthlyAmount:           DefaultMonthlyAmount,
		InstallmentAmount:       DefaultInstallmentAmount,
		InstallmentIntervalMths: DefaultInstallmentMonths,
		ReminderDays:            DefaultReminderDays,
	}
}

// AmountForPlan returns the configured default amount for a plan type.
func (c PlanConfig) AmountForPlan(plan PlanType) (int64, bool) {
	switch plan {
	case PlanOneTime:
		return c.OneTimeAmount, true
	case PlanMonthly:
		return c.MonthlyAmount, true
	case PlanInstallment:
		return c.InstallmentAmount, true
	}
	return 0, false
}
