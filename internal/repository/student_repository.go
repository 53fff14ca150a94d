package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
)

const studentColumns = `id, full_name, group_name, plan_type, plan_amount, installment_count,
        paid_amount, enrollment_date, next_due_date, payment_status, created_at, updated_at`

// StudentRepository manages persistence for student records and their cached
// billing fields.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.GroupName != "" {
		conditions = append(conditions, fmt.Sprintf("group_name = $%d", len(args)+1))
		args = append(args, filter.GroupName)
	}
	if filter.PlanType != "" {
		conditions = append(conditions, fmt.Sprintf("plan_type = $%d", len(args)+1))
		args = append(args, filter.PlanType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"full_name":       "full_name",
		"enrollment_date": "enrollment_date",
		"next_due_date":   "next_due_date",
		"paid_amount":     "paid_amount",
		"created_at":      "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, where, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID. Callers are expected to map sql.ErrNoRows
// into a domain error.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// NextBusinessID allocates the next sequential student identifier (STU000001,
// STU000002, ...). Sequence gaps after deletions are acceptable.
func (r *StudentRepository) NextBusinessID(ctx context.Context) (string, error) {
	const query = `SELECT COALESCE(MAX(SUBSTRING(id FROM 4)::int), 0) + 1 FROM students WHERE id ~ '^STU[0-9]+$'`
	var next int
	if err := r.db.GetContext(ctx, &next, query); err != nil {
		return "", fmt.Errorf("next student id: %w", err)
	}
	return fmt.Sprintf("STU%06d", next), nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, group_name, plan_type, plan_amount, installment_count,
        paid_amount, enrollment_date, next_due_date, payment_status, created_at, updated_at)
        VALUES (:id, :full_name, :group_name, :plan_type, :plan_amount, :installment_count,
        :paid_amount, :enrollment_date, :next_due_date, :payment_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies the editable profile fields of a student. Paid amount and
// the derived billing fields are owned by the payment and recompute paths.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, group_name = :group_name,
        plan_type = :plan_type, plan_amount = :plan_amount, installment_count = :installment_count,
        enrollment_date = :enrollment_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student and, through ON DELETE CASCADE, their payment
// history. It reports whether a row was actually removed.
func (r *StudentRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	return affected > 0, nil
}

// UpdateBillingFields persists a recomputed next due date and status for one
// student without touching the rest of the row.
func (r *StudentRepository) UpdateBillingFields(ctx context.Context, id string, status models.PaymentStatus, nextDue *time.Time) error {
	const query = `UPDATE students SET payment_status = $2, next_due_date = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, nextDue, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update billing fields: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update billing fields: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAll streams every student ordered by ID, for batch recomputation.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students ORDER BY id", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// ListByStatus returns students currently classified under one status.
func (r *StudentRepository) ListByStatus(ctx context.Context, status models.PaymentStatus) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE payment_status = $1 ORDER BY next_due_date NULLS LAST, id", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, status); err != nil {
		return nil, fmt.Errorf("list students by status: %w", err)
	}
	return students, nil
}

// BulkUpdateStatuses reclassifies every student in a single UPDATE using the
// generated status expression, writing only rows whose status actually
// changes. It returns the number of rows updated.
func (r *StudentRepository) BulkUpdateStatuses(ctx context.Context, reminderDays int, today time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, billing.BulkStatusUpdateSQL(), reminderDays, billing.DateOnly(today))
	if err != nil {
		return 0, fmt.Errorf("bulk status update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk status update: %w", err)
	}
	return affected, nil
}
