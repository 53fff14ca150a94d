package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/models"
)

const paymentColumns = "id, student_id, amount, payment_date, payment_method, notes, created_at"

// PaymentRepository manages payment transactions and the paid_amount
// aggregate they maintain on the student row.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// RecordWithAggregate inserts a payment and bumps the student's paid_amount
// in one transaction. The student row is locked first so concurrent payments
// for the same student serialize instead of losing updates. The returned
// student reflects the post-payment aggregate.
func (r *PaymentRepository) RecordWithAggregate(ctx context.Context, payment *models.PaymentTransaction) (*models.Student, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	lockQuery := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 FOR UPDATE", studentColumns)
	var student models.Student
	if err := tx.GetContext(ctx, &student, lockQuery, payment.StudentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	const insertQuery = `INSERT INTO payment_transactions (id, student_id, amount, payment_date, payment_method, notes, created_at)
        VALUES (:id, :student_id, :amount, :payment_date, :payment_method, :notes, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, payment); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	const aggregateQuery = `UPDATE students SET paid_amount = paid_amount + $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, aggregateQuery, payment.StudentID, payment.Amount, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("apply payment to student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}
	student.PaidAmount += payment.Amount
	return &student, nil
}

// DeleteWithAggregate removes a payment and subtracts its amount from the
// student's paid_amount, flooring at zero, in one transaction. It reports
// whether the payment existed; deleting an absent payment is not an error.
func (r *PaymentRepository) DeleteWithAggregate(ctx context.Context, paymentID string) (*models.PaymentTransaction, *models.Student, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, false, err
	}

	findQuery := fmt.Sprintf("SELECT %s FROM payment_transactions WHERE id = $1", paymentColumns)
	var payment models.PaymentTransaction
	if err := tx.GetContext(ctx, &payment, findQuery, paymentID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("find payment: %w", err)
	}

	lockQuery := fmt.Sprintf("SELECT %s FROM students WHERE id = $1 FOR UPDATE", studentColumns)
	var student models.Student
	if err := tx.GetContext(ctx, &student, lockQuery, payment.StudentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, nil, false, fmt.Errorf("lock student: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM payment_transactions WHERE id = $1", paymentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, nil, false, fmt.Errorf("delete payment: %w", err)
	}

	const aggregateQuery = `UPDATE students SET paid_amount = GREATEST(paid_amount - $2, 0), updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, aggregateQuery, payment.StudentID, payment.Amount, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, nil, false, fmt.Errorf("apply deletion to student: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, false, fmt.Errorf("commit payment deletion: %w", err)
	}
	student.PaidAmount -= payment.Amount
	if student.PaidAmount < 0 {
		student.PaidAmount = 0
	}
	return &payment, &student, true, nil
}

// FindByID fetches a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	query := fmt.Sprintf("SELECT %s FROM payment_transactions WHERE id = $1", paymentColumns)
	var payment models.PaymentTransaction
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

func paymentConditions(filter models.PaymentFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("payment_date >= $%d", len(args)+1))
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("payment_date <= $%d", len(args)+1))
		args = append(args, *filter.EndDate)
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("payment_method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}
	if filter.MinAmount != nil {
		conditions = append(conditions, fmt.Sprintf("amount >= $%d", len(args)+1))
		args = append(args, *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		conditions = append(conditions, fmt.Sprintf("amount <= $%d", len(args)+1))
		args = append(args, *filter.MaxAmount)
	}
	return strings.Join(conditions, " AND "), args
}

// List returns payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentTransaction, int, error) {
	where, args := paymentConditions(filter)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE %s
        ORDER BY payment_date DESC, created_at DESC LIMIT %d OFFSET %d`, paymentColumns, where, size, offset)

	var payments []models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payment_transactions WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// LastPaymentDate returns the most recent payment date for a student, or nil
// when no payments remain.
func (r *PaymentRepository) LastPaymentDate(ctx context.Context, studentID string) (*time.Time, error) {
	const query = `SELECT MAX(payment_date) FROM payment_transactions WHERE student_id = $1`
	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last, query, studentID); err != nil {
		return nil, fmt.Errorf("last payment date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

type statisticsRow struct {
	Method models.PaymentMethod `db:"payment_method"`
	Count  int                  `db:"count"`
	Total  int64                `db:"total"`
}

// Statistics aggregates count, total and per-method breakdown over the
// payments matching the filter.
func (r *PaymentRepository) Statistics(ctx context.Context, filter models.PaymentFilter) (*models.PaymentStatistics, error) {
	where, args := paymentConditions(filter)

	query := fmt.Sprintf(`SELECT payment_method, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
        FROM payment_transactions WHERE %s GROUP BY payment_method`, where)

	var rows []statisticsRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("payment statistics: %w", err)
	}

	stats := &models.PaymentStatistics{
		MethodBreakdown: make(map[models.PaymentMethod]models.PaymentMethodStats, len(rows)),
	}
	for _, row := range rows {
		stats.TransactionCount += row.Count
		stats.TotalAmount += row.Total
		stats.MethodBreakdown[row.Method] = models.PaymentMethodStats{Count: row.Count, TotalAmount: row.Total}
	}
	if stats.TransactionCount > 0 {
		stats.AverageAmount = float64(stats.TotalAmount) / float64(stats.TransactionCount)
	}
	return stats, nil
}

// Recent returns the most recent payments across all students.
func (r *PaymentRepository) Recent(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions
        ORDER BY payment_date DESC, created_at DESC LIMIT %d`, paymentColumns, limit)
	var payments []models.PaymentTransaction
	if err := r.db.SelectContext(ctx, &payments, query); err != nil {
		return nil, fmt.Errorf("recent payments: %w", err)
	}
	return payments, nil
}
