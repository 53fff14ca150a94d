package models

import "time"

// PlanType identifies the billing recurrence model assigned to a student.
type PlanType string

const (
	PlanOneTime     PlanType = "one_time"
	PlanMonthly     PlanType = "monthly"
	PlanInstallment PlanType = "installment"
)

// ParsePlanType maps a serialized token to a PlanType. Unknown tokens are
// rejected rather than defaulted.
func ParsePlanType(s string) (PlanType, bool) {
	switch PlanType(s) {
	case PlanOneTime, PlanMonthly, PlanInstallment:
		return PlanType(s), true
	}
	return "", false
}

// Valid reports whether the plan type is a recognized token.
func (p PlanType) Valid() bool {
	_, ok := ParsePlanType(string(p))
	return ok
}

// PaymentStatus is the derived billing classification of a student. The four
// values are mutually exclusive buckets, not a progression: a payment can move
// a student straight from overdue back to pending or paid.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPending PaymentStatus = "pending"
	StatusOverdue PaymentStatus = "overdue"
	StatusDueSoon PaymentStatus = "due_soon"
)

// ParsePaymentStatus maps a serialized token to a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch PaymentStatus(s) {
	case StatusPaid, StatusPending, StatusOverdue, StatusDueSoon:
		return PaymentStatus(s), true
	}
	return "", false
}

// Student represents a learner and the billing state attached to them.
// PaidAmount is mutated exclusively by payment recording/deletion.
// NextDueDate and PaymentStatus are cached derivations: always reproducible
// from the other persisted fields, the plan config and the clock.
type Student struct {
	ID               string        `db:"id" json:"id"`
	FullName         string        `db:"full_name" json:"full_name"`
	GroupName        string        `db:"group_name" json:"group_name"`
	PlanType         PlanType      `db:"plan_type" json:"plan_type"`
	PlanAmount       int64         `db:"plan_amount" json:"plan_amount"`
	InstallmentCount *int          `db:"installment_count" json:"installment_count,omitempty"`
	PaidAmount       int64         `db:"paid_amount" json:"paid_amount"`
	EnrollmentDate   time.Time     `db:"enrollment_date" json:"enrollment_date"`
	NextDueDate      *time.Time    `db:"next_due_date" json:"next_due_date,omitempty"`
	PaymentStatus    PaymentStatus `db:"payment_status" json:"payment_status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	GroupName string
	PlanType  string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
