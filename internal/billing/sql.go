package billing

import (
	"fmt"

	"github.com/noah-isme/tuition-api/internal/models"
)

// StatusCaseSQL renders ClassifyStatus as a single Postgres CASE expression
// over the students table. It is generated from the same constants the Go
// classifier uses; hand-editing the rendered SQL instead of the rule is a
// bug. Placeholder $1 is the reminder window in days, $2 the date to treat
// as today (date - date yields whole days in Postgres).
func StatusCaseSQL() string {
	// Mirrors the recurring branch of ClassifyStatus, including its
	// fallback to enrollment_date when no due date is cached.
	recurring := func(expectedExpr string) string {
		return fmt.Sprintf(`CASE
        WHEN paid_amount >= %s THEN '%s'
        WHEN (COALESCE(next_due_date, enrollment_date) - $2::date) < 0 THEN '%s'
        WHEN (COALESCE(next_due_date, enrollment_date) - $2::date) <= $1 THEN '%s'
        ELSE '%s'
    END`,
			expectedExpr,
			models.StatusPaid,
			models.StatusOverdue,
			models.StatusDueSoon,
			models.StatusPending)
	}

	// TRUNC matches Go's int() conversion (toward zero), GREATEST the
	// minimum of one elapsed billing period.
	monthlyExpected := fmt.Sprintf(
		"plan_amount * GREATEST(TRUNC(($2::date - enrollment_date) / %v)::int + 1, 1)",
		daysPerMonth)
	// Same defensive fallback as EffectiveInstallmentCount, including the
	// non-positive case.
	installmentExpected := fmt.Sprintf(
		"plan_amount * (CASE WHEN installment_count IS NULL OR installment_count <= 0 THEN %d ELSE installment_count END)",
		defaultInstallmentCount)

	return fmt.Sprintf(`CASE plan_type
    WHEN '%s' THEN CASE
        WHEN paid_amount >= plan_amount THEN '%s'
        WHEN ($2::date - enrollment_date) > %d THEN '%s'
        ELSE '%s'
    END
    WHEN '%s' THEN %s
    WHEN '%s' THEN %s
    ELSE payment_status
END`,
		models.PlanOneTime,
		models.StatusPaid, oneTimeGraceDays, models.StatusOverdue, models.StatusPending,
		models.PlanMonthly, recurring(monthlyExpected),
		models.PlanInstallment, recurring(installmentExpected))
}

// BulkStatusUpdateSQL is the full UPDATE statement used by the bulk
// recompute path. Only rows whose classification actually changes are
// touched, matching the row-by-row recomputer's write-on-change behaviour.
func BulkStatusUpdateSQL() string {
	caseExpr := StatusCaseSQL()
	return fmt.Sprintf(
		"UPDATE students SET payment_status = %s, updated_at = NOW() WHERE payment_status IS DISTINCT FROM %s",
		caseExpr, caseExpr)
}
