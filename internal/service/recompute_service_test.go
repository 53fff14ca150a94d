package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type mockBillingStudents struct {
	students map[string]models.Student
	writes   []string
	bulkArgs []interface{}
	bulkN    int64
	err      error
	writeErr map[string]error
}

func (m *mockBillingStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		found := s
		return &found, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBillingStudents) ListAll(ctx context.Context) ([]models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, id := range sortedKeys(m.students) {
		out = append(out, m.students[id])
	}
	return out, nil
}

func (m *mockBillingStudents) UpdateBillingFields(ctx context.Context, id string, status models.PaymentStatus, nextDue *time.Time) error {
	if err := m.writeErr[id]; err != nil {
		return err
	}
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.PaymentStatus = status
	s.NextDueDate = nextDue
	m.students[id] = s
	m.writes = append(m.writes, id)
	return nil
}

func (m *mockBillingStudents) BulkUpdateStatuses(ctx context.Context, reminderDays int, today time.Time) (int64, error) {
	m.bulkArgs = []interface{}{reminderDays, today}
	return m.bulkN, nil
}

func sortedKeys(m map[string]models.Student) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

type mockPaymentDates struct {
	last map[string]*time.Time
	err  error
}

func (m *mockPaymentDates) LastPaymentDate(ctx context.Context, studentID string) (*time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.last[studentID], nil
}

type mockConfig struct {
	cfg     models.PlanConfig
	updated *models.PlanConfig
	err     error
}

func (m *mockConfig) Get(ctx context.Context) (*models.PlanConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	cfg := m.cfg
	return &cfg, nil
}

func (m *mockConfig) Update(ctx context.Context, cfg *models.PlanConfig) error {
	m.updated = cfg
	m.cfg = *cfg
	return nil
}

func TestRecomputeStudentWritesOnChange(t *testing.T) {
	now := day(2024, time.June, 1)
	lastPayment := day(2024, time.May, 10)
	students := &mockBillingStudents{students: map[string]models.Student{
		"STU000001": {
			ID: "STU000001", PlanType: models.PlanMonthly, PlanAmount: 850,
			PaidAmount: 0, EnrollmentDate: day(2024, time.January, 15),
			PaymentStatus: models.StatusPending,
		},
	}}
	payments := &mockPaymentDates{last: map[string]*time.Time{"STU000001": &lastPayment}}
	svc := NewRecomputeService(students, payments, &mockConfig{cfg: models.DefaultPlanConfig()}, nil, zap.NewNop(), fixedClock(now))

	student := students.students["STU000001"]
	changed, err := svc.RecomputeStudent(context.Background(), &student)
	require.NoError(t, err)
	assert.True(t, changed)

	// Due date anchors to the last payment; nine days out is beyond the
	// 7-day reminder window, so the status stays pending but the freshly
	// derived due date still forces a write.
	require.NotNil(t, student.NextDueDate)
	assert.Equal(t, day(2024, time.June, 10), *student.NextDueDate)
	assert.Equal(t, models.StatusPending, student.PaymentStatus)
	assert.Equal(t, []string{"STU000001"}, students.writes)
}

func TestRecomputeStudentSkipsWriteWhenUnchanged(t *testing.T) {
	now := day(2024, time.June, 1)
	due := day(2024, time.June, 20)
	students := &mockBillingStudents{students: map[string]models.Student{
		"STU000001": {
			ID: "STU000001", PlanType: models.PlanOneTime, PlanAmount: 6000,
			PaidAmount: 6000, EnrollmentDate: day(2024, time.January, 15),
			NextDueDate: &due, PaymentStatus: models.StatusPaid,
		},
	}}
	payments := &mockPaymentDates{last: map[string]*time.Time{}}
	svc := NewRecomputeService(students, payments, &mockConfig{cfg: models.DefaultPlanConfig()}, nil, zap.NewNop(), fixedClock(now))

	student := students.students["STU000001"]
	// One-time due date is pinned to enrollment, so the stale cached value
	// still forces one corrective write.
	changed, err := svc.RecomputeStudent(context.Background(), &student)
	require.NoError(t, err)
	assert.True(t, changed)

	// A second pass over the corrected row is a no-op.
	changed, err = svc.RecomputeStudent(context.Background(), &student)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"STU000001"}, students.writes)
}

func TestRecomputeAllAccumulatesFailures(t *testing.T) {
	now := day(2024, time.June, 1)
	students := &mockBillingStudents{
		students: map[string]models.Student{
			"STU000001": {
				ID: "STU000001", PlanType: models.PlanMonthly, PlanAmount: 850,
				EnrollmentDate: day(2024, time.January, 1), PaymentStatus: models.StatusPending,
			},
			"STU000002": {
				ID: "STU000002", PlanType: models.PlanType("bogus"), PlanAmount: 850,
				EnrollmentDate: day(2024, time.January, 1), PaymentStatus: models.StatusPending,
			},
			"STU000003": {
				ID: "STU000003", PlanType: models.PlanOneTime, PlanAmount: 6000, PaidAmount: 6000,
				EnrollmentDate: day(2024, time.January, 1), PaymentStatus: models.StatusPaid,
			},
		},
	}
	payments := &mockPaymentDates{last: map[string]*time.Time{}}
	svc := NewRecomputeService(students, payments, &mockConfig{cfg: models.DefaultPlanConfig()}, nil, zap.NewNop(), fixedClock(now))

	result, err := svc.RecomputeAll(context.Background())
	require.NoError(t, err)

	// The corrupt row fails, the rest are still processed.
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "STU000002", result.Failures[0].StudentID)
	assert.Equal(t, 2, result.Updated+result.Unchanged)
}

func TestRecomputeByIDNotFound(t *testing.T) {
	students := &mockBillingStudents{students: map[string]models.Student{}}
	svc := NewRecomputeService(students, &mockPaymentDates{}, &mockConfig{cfg: models.DefaultPlanConfig()}, nil, zap.NewNop(), fixedClock(day(2024, time.June, 1)))

	_, err := svc.RecomputeByID(context.Background(), "STU000404")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRecomputeAllBulkUsesConfiguredReminderWindow(t *testing.T) {
	now := day(2024, time.June, 1)
	students := &mockBillingStudents{bulkN: 5}
	cfg := models.DefaultPlanConfig()
	cfg.ReminderDays = 14
	svc := NewRecomputeService(students, &mockPaymentDates{}, &mockConfig{cfg: cfg}, nil, zap.NewNop(), fixedClock(now))

	updated, err := svc.RecomputeAllBulk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated)
	require.Len(t, students.bulkArgs, 2)
	assert.Equal(t, 14, students.bulkArgs[0])
	assert.Equal(t, now, students.bulkArgs[1])
}
