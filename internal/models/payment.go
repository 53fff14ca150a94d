package models

import "time"

// PaymentMethod identifies how a payment was received.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
)

// ParsePaymentMethod maps a serialized token to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case MethodCash, MethodBankTransfer, MethodCheck:
		return PaymentMethod(s), true
	}
	return "", false
}

// Valid reports whether the method is a recognized token.
func (m PaymentMethod) Valid() bool {
	_, ok := ParsePaymentMethod(string(m))
	return ok
}

// PaymentTransaction is one recorded payment. Rows are immutable: they are
// inserted by payment recording and removed only by hard delete, never edited.
// CreatedAt breaks ties when transactions share a payment date.
type PaymentTransaction struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	Amount        int64         `db:"amount" json:"amount"`
	PaymentDate   time.Time     `db:"payment_date" json:"payment_date"`
	PaymentMethod PaymentMethod `db:"payment_method" json:"payment_method"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// PaymentFilter narrows payment history queries.
type PaymentFilter struct {
	StudentID string
	StartDate *time.Time
	EndDate   *time.Time
	Method    string
	MinAmount *int64
	MaxAmount *int64
	Page      int
	PageSize  int
}

// PaymentMethodStats aggregates transactions for one method.
type PaymentMethodStats struct {
	Count       int   `json:"count"`
	TotalAmount int64 `json:"total_amount"`
}

// PaymentStatistics summarises the transaction log over a date range.
type PaymentStatistics struct {
	TransactionCount int                                  `json:"transaction_count"`
	TotalAmount      int64                                `json:"total_amount"`
	AverageAmount    float64                              `json:"average_amount"`
	MethodBreakdown  map[PaymentMethod]PaymentMethodStats `json:"method_breakdown"`
}

// PlanStats aggregates billing state for students on one plan type.
type PlanStats struct {
	TotalStudents   int   `json:"total_students"`
	TotalPaid       int64 `json:"total_paid"`
	TotalExpected   int64 `json:"total_expected"`
	StudentsPaid    int   `json:"students_paid"`
	StudentsPending int   `json:"students_pending"`
	StudentsOverdue int   `json:"students_overdue"`
	StudentsDueSoon int   `json:"students_due_soon"`
}

// PaymentSummary is the dashboard snapshot of the whole billing ledger.
type PaymentSummary struct {
	TotalStudents       int                    `json:"total_students"`
	TotalPaidAmount     int64                  `json:"total_paid_amount"`
	TotalExpectedAmount int64                  `json:"total_expected_amount"`
	StudentsPaid        int                    `json:"students_paid"`
	StudentsPending     int                    `json:"students_pending"`
	StudentsOverdue     int                    `json:"students_overdue"`
	StudentsDueSoon     int                    `json:"students_due_soon"`
	PlanBreakdown       map[PlanType]PlanStats `json:"plan_breakdown"`
	RecentPayments      []PaymentTransaction   `json:"recent_payments"`
}

// OverdueStudent describes one student behind on their plan.
type OverdueStudent struct {
	StudentID      string     `json:"student_id"`
	FullName       string     `json:"full_name"`
	PlanType       PlanType   `json:"plan_type"`
	ExpectedAmount int64      `json:"expected_amount"`
	PaidAmount     int64      `json:"paid_amount"`
	OverdueAmount  int64      `json:"overdue_amount"`
	NextDueDate    *time.Time `json:"next_due_date,omitempty"`
	DaysOverdue    int        `json:"days_overdue"`
}

// BatchFailure records one student the batch recompute could not update.
type BatchFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// BatchResult reports the outcome of a batch recompute. Partial success is
// expected: per-student failures accumulate instead of aborting the run.
type BatchResult struct {
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Failures  []BatchFailure `json:"failures"`
}
