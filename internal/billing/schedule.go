// Package billing holds the pure billing rule: expectation, due date and
// status derivation. Everything here is side-effect free and driven by an
// explicit "now" so date-relative behaviour is testable without touching the
// system clock. The bulk SQL used by the batch recomputer is rendered from
// the same constants (see sql.go) so the two classification paths cannot
// drift apart.
package billing

import (
	"fmt"
	"time"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

const (
	// MaxPaymentAmount caps a single transaction, in minor currency units.
	MaxPaymentAmount int64 = 1_000_000

	// daysPerMonth is the average month length used to derive how many
	// monthly billing periods have elapsed since enrollment.
	daysPerMonth = 30.44

	// defaultInstallmentCount is a defensive fallback: installment students
	// are validated to carry an explicit count, but computation must not
	// fail if the column is somehow absent.
	defaultInstallmentCount = 3

	// oneTimeGraceDays is how long after enrollment a one-time plan may stay
	// unpaid before it is overdue.
	oneTimeGraceDays = 30

	// DateFormat is the wire format for calendar dates.
	DateFormat = "2006-01-02"
)

// DateOnly strips the time component, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b (negative when b < a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// EffectiveInstallmentCount resolves the installment count, applying the
// defensive fallback when the stored value is missing or non-positive.
func EffectiveInstallmentCount(count *int) int {
	if count == nil || *count <= 0 {
		return defaultInstallmentCount
	}
	return *count
}

// monthsElapsed converts elapsed days into billing periods: one period is
// open from day zero, and a new one opens every average month thereafter.
func monthsElapsed(enrollment, now time.Time) int {
	months := int(float64(DaysBetween(enrollment, now))/daysPerMonth) + 1
	if months < 1 {
		months = 1
	}
	return months
}

// ExpectedAmount returns the total a student should have paid by now.
// One-time plans expect the full amount immediately; monthly plans accrue
// one plan amount per elapsed billing period regardless of payments made;
// installment plans expect the full schedule up front.
func ExpectedAmount(plan models.PlanType, planAmount int64, enrollment time.Time, installmentCount *int, now time.Time) (int64, error) {
	switch plan {
	case models.PlanOneTime:
		return planAmount, nil
	case models.PlanMonthly:
		return planAmount * int64(monthsElapsed(enrollment, now)), nil
	case models.PlanInstallment:
		return planAmount * int64(EffectiveInstallmentCount(installmentCount)), nil
	}
	return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown plan type: %s", plan))
}

// NextDueDate returns the next date a payment is expected.
// One-time plans are due from enrollment and never advance. Recurring plans
// anchor to the most recent payment, not the previous due date: paying early
// or late shifts the whole schedule. Month arithmetic uses time.AddDate,
// which normalizes end-of-month overflow forward (Jan 31 + 1 month lands in
// early March).
func NextDueDate(plan models.PlanType, enrollment time.Time, lastPayment *time.Time, intervalMonths int) (*time.Time, error) {
	switch plan {
	case models.PlanOneTime:
		due := DateOnly(enrollment)
		return &due, nil
	case models.PlanMonthly:
		due := advanceFrom(enrollment, lastPayment, 1)
		return &due, nil
	case models.PlanInstallment:
		if intervalMonths <= 0 {
			intervalMonths = models.DefaultInstallmentMonths
		}
		due := advanceFrom(enrollment, lastPayment, intervalMonths)
		return &due, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown plan type: %s", plan))
}

func advanceFrom(enrollment time.Time, lastPayment *time.Time, months int) time.Time {
	if lastPayment == nil {
		return DateOnly(enrollment)
	}
	return DateOnly(*lastPayment).AddDate(0, months, 0)
}

// ClassifyStatus derives the discrete billing status for a student.
// It is pure: identical inputs always produce the identical status.
//
// One-time plans ignore the due date and reminder window entirely; they are
// paid once the full amount is in, overdue after the grace period, pending
// otherwise. Recurring plans are paid once the expected-to-date amount is
// covered, otherwise classified by how far away the next due date is.
func ClassifyStatus(plan models.PlanType, planAmount, paidAmount int64, installmentCount *int, nextDue *time.Time, enrollment time.Time, reminderDays int, now time.Time) (models.PaymentStatus, error) {
	switch plan {
	case models.PlanOneTime:
		if paidAmount >= planAmount {
			return models.StatusPaid, nil
		}
		if DaysBetween(enrollment, now) > oneTimeGraceDays {
			return models.StatusOverdue, nil
		}
		return models.StatusPending, nil

	case models.PlanMonthly, models.PlanInstallment:
		expected, err := ExpectedAmount(plan, planAmount, enrollment, installmentCount, now)
		if err != nil {
			return "", err
		}
		if paidAmount >= expected {
			return models.StatusPaid, nil
		}

		due := DateOnly(enrollment)
		if nextDue != nil {
			due = DateOnly(*nextDue)
		}
		daysUntilDue := DaysBetween(now, due)
		switch {
		case daysUntilDue < 0:
			return models.StatusOverdue, nil
		case daysUntilDue <= reminderDays:
			return models.StatusDueSoon, nil
		default:
			return models.StatusPending, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown plan type: %s", plan))
}
