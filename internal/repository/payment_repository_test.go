package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
)

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "amount", "payment_date", "payment_method", "notes", "created_at"})
}

func TestPaymentRepositoryRecordWithAggregate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("STU000001").
		WillReturnRows(studentRows().
			AddRow("STU000001", "Alice", "Group A", "monthly", int64(850), nil, int64(850), time.Now(), nil, "paid", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO payment_transactions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE students SET paid_amount = paid_amount \+ \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("STU000001", int64(850), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment := &models.PaymentTransaction{
		StudentID:     "STU000001",
		Amount:        850,
		PaymentDate:   time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		PaymentMethod: models.MethodCash,
	}
	student, err := repo.RecordWithAggregate(context.Background(), payment)
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, int64(1700), student.PaidAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRecordRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("STU000001").
		WillReturnRows(studentRows().
			AddRow("STU000001", "Alice", "Group A", "monthly", int64(850), nil, int64(0), time.Now(), nil, "pending", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO payment_transactions").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.RecordWithAggregate(context.Background(), &models.PaymentTransaction{
		StudentID: "STU000001", Amount: 850, PaymentDate: time.Now(), PaymentMethod: models.MethodCash,
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteWithAggregate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM payment_transactions WHERE id = \$1`).
		WithArgs("pay-1").
		WillReturnRows(paymentRows().
			AddRow("pay-1", "STU000001", int64(850), time.Now(), "cash", nil, time.Now()))
	mock.ExpectQuery(`SELECT (.+) FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("STU000001").
		WillReturnRows(studentRows().
			AddRow("STU000001", "Alice", "Group A", "monthly", int64(850), nil, int64(850), time.Now(), nil, "paid", time.Now(), time.Now()))
	mock.ExpectExec(`DELETE FROM payment_transactions WHERE id = \$1`).
		WithArgs("pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE students SET paid_amount = GREATEST\(paid_amount - \$2, 0\), updated_at = \$3 WHERE id = \$1`).
		WithArgs("STU000001", int64(850), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, student, found, err := repo.DeleteWithAggregate(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pay-1", payment.ID)
	assert.Equal(t, int64(0), student.PaidAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteAbsentPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM payment_transactions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(paymentRows())
	mock.ExpectRollback()

	_, _, found, err := repo.DeleteWithAggregate(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM payment_transactions WHERE 1=1 AND student_id = \$1\s+ORDER BY payment_date DESC, created_at DESC LIMIT 20 OFFSET 0`).
		WithArgs("STU000001").
		WillReturnRows(paymentRows().
			AddRow("pay-1", "STU000001", int64(850), time.Now(), "cash", nil, time.Now()).
			AddRow("pay-2", "STU000001", int64(850), time.Now(), "bank_transfer", nil, time.Now()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM payment_transactions WHERE 1=1 AND student_id = \$1`).
		WithArgs("STU000001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	payments, total, err := repo.List(context.Background(), models.PaymentFilter{StudentID: "STU000001"})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryLastPaymentDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	last := time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MAX\(payment_date\) FROM payment_transactions WHERE student_id = \$1`).
		WithArgs("STU000001").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(last))

	got, err := repo.LastPaymentDate(context.Background(), "STU000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, last, *got)

	mock.ExpectQuery(`SELECT MAX\(payment_date\) FROM payment_transactions WHERE student_id = \$1`).
		WithArgs("STU000002").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err = repo.LastPaymentDate(context.Background(), "STU000002")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryStatistics(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(`SELECT payment_method, COUNT\(\*\) AS count, COALESCE\(SUM\(amount\), 0\) AS total`).
		WillReturnRows(sqlmock.NewRows([]string{"payment_method", "count", "total"}).
			AddRow("cash", 3, int64(2550)).
			AddRow("check", 1, int64(850)))

	stats, err := repo.Statistics(context.Background(), models.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TransactionCount)
	assert.Equal(t, int64(3400), stats.TotalAmount)
	assert.InDelta(t, 850.0, stats.AverageAmount, 0.001)
	assert.Equal(t, 3, stats.MethodBreakdown[models.MethodCash].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
