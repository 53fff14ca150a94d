package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/billing"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type mockPaymentRepo struct {
	recorded   []models.PaymentTransaction
	deleted    []string
	student    *models.Student
	payment    *models.PaymentTransaction
	found      bool
	listResult []models.PaymentTransaction
	listTotal  int
	stats      *models.PaymentStatistics
	err        error
}

func (m *mockPaymentRepo) RecordWithAggregate(ctx context.Context, payment *models.PaymentTransaction) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	payment.ID = "pay-generated"
	m.recorded = append(m.recorded, *payment)
	student := *m.student
	student.PaidAmount += payment.Amount
	return &student, nil
}

func (m *mockPaymentRepo) DeleteWithAggregate(ctx context.Context, paymentID string) (*models.PaymentTransaction, *models.Student, bool, error) {
	if m.err != nil {
		return nil, nil, false, m.err
	}
	if !m.found {
		return nil, nil, false, nil
	}
	m.deleted = append(m.deleted, paymentID)
	return m.payment, m.student, true, nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentTransaction, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.listResult, m.listTotal, nil
}

func (m *mockPaymentRepo) Statistics(ctx context.Context, filter models.PaymentFilter) (*models.PaymentStatistics, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		found := s
		return &found, nil
	}
	return nil, sql.ErrNoRows
}

type mockRecomputer struct {
	calls []string
	err   error
}

func (m *mockRecomputer) RecomputeStudent(ctx context.Context, student *models.Student) (bool, error) {
	m.calls = append(m.calls, student.ID)
	if m.err != nil {
		return false, m.err
	}
	return true, nil
}

type mockAuditor struct {
	actions []string
}

func (m *mockAuditor) Record(action, resource string, resourceID *string, oldValues, newValues interface{}) {
	m.actions = append(m.actions, action)
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func paymentFixtureStudent() *models.Student {
	return &models.Student{
		ID: "STU000001", FullName: "Alice", PlanType: models.PlanMonthly,
		PlanAmount: 850, EnrollmentDate: day(2024, time.January, 15),
		PaymentStatus: models.StatusPending,
	}
}

func TestRecordPayment(t *testing.T) {
	student := paymentFixtureStudent()
	repo := &mockPaymentRepo{student: student}
	reader := &mockStudentReader{students: map[string]models.Student{student.ID: *student}}
	recompute := &mockRecomputer{}
	audit := &mockAuditor{}
	cache := &mockInvalidator{}
	svc := NewPaymentService(repo, reader, recompute, audit, cache, nil, validator.New(), zap.NewNop())

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:     student.ID,
		Amount:        850,
		PaymentDate:   time.Date(2024, time.June, 1, 14, 30, 0, 0, time.UTC),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-generated", payment.ID)
	// Payment dates are stored date-only.
	assert.Equal(t, day(2024, time.June, 1), payment.PaymentDate)
	assert.Equal(t, []string{student.ID}, recompute.calls)
	assert.Equal(t, []string{models.AuditActionPaymentCreate}, audit.actions)
	assert.NotEmpty(t, cache.patterns)
}

func TestRecordPaymentValidation(t *testing.T) {
	student := paymentFixtureStudent()
	repo := &mockPaymentRepo{student: student}
	reader := &mockStudentReader{students: map[string]models.Student{student.ID: *student}}
	svc := NewPaymentService(repo, reader, &mockRecomputer{}, nil, nil, nil, validator.New(), zap.NewNop())

	cases := []struct {
		name string
		req  RecordPaymentRequest
	}{
		{"zero amount", RecordPaymentRequest{StudentID: student.ID, Amount: 0, PaymentDate: time.Now(), PaymentMethod: "cash"}},
		{"negative amount", RecordPaymentRequest{StudentID: student.ID, Amount: -5, PaymentDate: time.Now(), PaymentMethod: "cash"}},
		{"amount over cap", RecordPaymentRequest{StudentID: student.ID, Amount: billing.MaxPaymentAmount + 1, PaymentDate: time.Now(), PaymentMethod: "cash"}},
		{"unknown method", RecordPaymentRequest{StudentID: student.ID, Amount: 100, PaymentDate: time.Now(), PaymentMethod: "crypto"}},
		{"missing date", RecordPaymentRequest{StudentID: student.ID, Amount: 100, PaymentMethod: "cash"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordPayment(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
			assert.Empty(t, repo.recorded)
		})
	}
}

func TestRecordPaymentAtCapSucceeds(t *testing.T) {
	student := paymentFixtureStudent()
	repo := &mockPaymentRepo{student: student}
	reader := &mockStudentReader{students: map[string]models.Student{student.ID: *student}}
	svc := NewPaymentService(repo, reader, &mockRecomputer{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:     student.ID,
		Amount:        billing.MaxPaymentAmount,
		PaymentDate:   time.Now(),
		PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)
	assert.Len(t, repo.recorded, 1)
}

func TestRecordPaymentStudentNotFound(t *testing.T) {
	repo := &mockPaymentRepo{student: paymentFixtureStudent()}
	reader := &mockStudentReader{students: map[string]models.Student{}}
	svc := NewPaymentService(repo, reader, &mockRecomputer{}, nil, nil, nil, validator.New(), zap.NewNop())

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:     "STU000404",
		Amount:        100,
		PaymentDate:   time.Now(),
		PaymentMethod: "cash",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, repo.recorded)
}

func TestRecordPaymentSurvivesRecomputeFailure(t *testing.T) {
	student := paymentFixtureStudent()
	repo := &mockPaymentRepo{student: student}
	reader := &mockStudentReader{students: map[string]models.Student{student.ID: *student}}
	recompute := &mockRecomputer{err: assert.AnError}
	svc := NewPaymentService(repo, reader, recompute, nil, nil, nil, validator.New(), zap.NewNop())

	// The committed payment stands even when the derived-status write fails.
	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:     student.ID,
		Amount:        850,
		PaymentDate:   time.Now(),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	assert.NotNil(t, payment)
	assert.Len(t, repo.recorded, 1)
}

func TestDeletePayment(t *testing.T) {
	student := paymentFixtureStudent()
	repo := &mockPaymentRepo{
		student: student,
		payment: &models.PaymentTransaction{ID: "pay-1", StudentID: student.ID, Amount: 850},
		found:   true,
	}
	recompute := &mockRecomputer{}
	audit := &mockAuditor{}
	svc := NewPaymentService(repo, &mockStudentReader{}, recompute, audit, nil, nil, validator.New(), zap.NewNop())

	found, err := svc.DeletePayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{student.ID}, recompute.calls)
	assert.Equal(t, []string{models.AuditActionPaymentDelete}, audit.actions)
}

func TestDeletePaymentReanchorsDueDate(t *testing.T) {
	// Two monthly payments, Jan 15 and Feb 15, put the due date at Mar 15.
	// After deleting the Feb 15 row the remaining Jan 15 payment is the new
	// anchor, so the due date must come back to Feb 15 rather than stay at
	// the stale Mar 15.
	stale := day(2024, time.March, 15)
	afterDelete := &models.Student{
		ID: "STU000001", FullName: "Alice", PlanType: models.PlanMonthly,
		PlanAmount: 850, PaidAmount: 850,
		EnrollmentDate: day(2024, time.January, 15),
		NextDueDate:    &stale,
		PaymentStatus:  models.StatusPending,
	}
	repo := &mockPaymentRepo{
		student: afterDelete,
		payment: &models.PaymentTransaction{
			ID: "pay-2", StudentID: afterDelete.ID, Amount: 850,
			PaymentDate: day(2024, time.February, 15),
		},
		found: true,
	}

	lastPayment := day(2024, time.January, 15)
	students := &mockBillingStudents{students: map[string]models.Student{afterDelete.ID: *afterDelete}}
	recompute := NewRecomputeService(
		students,
		&mockPaymentDates{last: map[string]*time.Time{afterDelete.ID: &lastPayment}},
		&mockConfig{cfg: models.DefaultPlanConfig()},
		nil, zap.NewNop(), fixedClock(day(2024, time.February, 20)),
	)
	svc := NewPaymentService(repo, &mockStudentReader{}, recompute, nil, nil, nil, validator.New(), zap.NewNop())

	found, err := svc.DeletePayment(context.Background(), "pay-2")
	require.NoError(t, err)
	assert.True(t, found)

	stored := students.students[afterDelete.ID]
	require.NotNil(t, stored.NextDueDate)
	assert.Equal(t, day(2024, time.February, 15), *stored.NextDueDate)
	assert.Equal(t, models.StatusOverdue, stored.PaymentStatus)
}

func TestDeletePaymentAbsent(t *testing.T) {
	repo := &mockPaymentRepo{found: false}
	recompute := &mockRecomputer{}
	svc := NewPaymentService(repo, &mockStudentReader{}, recompute, nil, nil, nil, validator.New(), zap.NewNop())

	found, err := svc.DeletePayment(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, recompute.calls)
}

func TestHistoryRejectsInvertedDateRange(t *testing.T) {
	svc := NewPaymentService(&mockPaymentRepo{}, &mockStudentReader{}, &mockRecomputer{}, nil, nil, nil, validator.New(), zap.NewNop())

	start := day(2024, time.June, 10)
	end := day(2024, time.June, 1)
	_, _, err := svc.History(context.Background(), models.PaymentFilter{StartDate: &start, EndDate: &end})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestHistoryPagination(t *testing.T) {
	repo := &mockPaymentRepo{
		listResult: []models.PaymentTransaction{{ID: "pay-1"}, {ID: "pay-2"}},
		listTotal:  7,
	}
	svc := NewPaymentService(repo, &mockStudentReader{}, &mockRecomputer{}, nil, nil, nil, validator.New(), zap.NewNop())

	payments, pagination, err := svc.History(context.Background(), models.PaymentFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 7, pagination.TotalCount)
}
