package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
)

type mockSummaryStudents struct {
	students []models.Student
	calls    int
}

func (m *mockSummaryStudents) ListAll(ctx context.Context) ([]models.Student, error) {
	m.calls++
	return m.students, nil
}

type mockRecentPayments struct {
	recent []models.PaymentTransaction
}

func (m *mockRecentPayments) Recent(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

type memoryCache struct {
	entries map[string][]byte
	sets    int
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	summary, isSummary := dest.(*models.PaymentSummary)
	if !isSummary {
		return false, nil
	}
	_ = raw
	*summary = models.PaymentSummary{TotalStudents: -1}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = []byte("cached")
	c.sets++
	return nil
}

func summaryFixture() []models.Student {
	return []models.Student{
		{
			ID: "STU000001", PlanType: models.PlanMonthly, PlanAmount: 850, PaidAmount: 1700,
			EnrollmentDate: day(2024, time.May, 1), PaymentStatus: models.StatusPaid,
		},
		{
			ID: "STU000002", PlanType: models.PlanMonthly, PlanAmount: 850, PaidAmount: 0,
			EnrollmentDate: day(2024, time.May, 1), PaymentStatus: models.StatusOverdue,
		},
		{
			ID: "STU000003", PlanType: models.PlanOneTime, PlanAmount: 6000, PaidAmount: 6000,
			EnrollmentDate: day(2024, time.January, 1), PaymentStatus: models.StatusPaid,
		},
	}
}

func TestSummaryComputesTotalsAndBreakdown(t *testing.T) {
	students := &mockSummaryStudents{students: summaryFixture()}
	payments := &mockRecentPayments{recent: []models.PaymentTransaction{{ID: "pay-1"}}}
	svc := NewSummaryService(students, payments, nil, time.Minute, zap.NewNop(), fixedClock(day(2024, time.June, 1)))

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalStudents)
	assert.Equal(t, int64(7700), summary.TotalPaidAmount)
	// Two monthly students at 2 expected periods each plus the one-time plan.
	assert.Equal(t, int64(2*1700+6000), summary.TotalExpectedAmount)
	assert.Equal(t, 2, summary.StudentsPaid)
	assert.Equal(t, 1, summary.StudentsOverdue)

	monthly := summary.PlanBreakdown[models.PlanMonthly]
	assert.Equal(t, 2, monthly.TotalStudents)
	assert.Equal(t, int64(1700), monthly.TotalPaid)
	assert.Equal(t, 1, monthly.StudentsOverdue)

	require.Len(t, summary.RecentPayments, 1)
}

func TestSummaryServedFromCache(t *testing.T) {
	students := &mockSummaryStudents{students: summaryFixture()}
	payments := &mockRecentPayments{}
	cache := &memoryCache{}
	svc := NewSummaryService(students, payments, cache, time.Minute, zap.NewNop(), fixedClock(day(2024, time.June, 1)))

	_, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, students.calls)
	assert.Equal(t, 1, cache.sets)

	// Second call hits the cache and never touches the repositories.
	cached, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -1, cached.TotalStudents)
	assert.Equal(t, 1, students.calls)
}

func TestSummarySkipsCorruptRows(t *testing.T) {
	students := &mockSummaryStudents{students: []models.Student{
		{ID: "STU000001", PlanType: models.PlanType("bogus"), PlanAmount: 850, EnrollmentDate: day(2024, time.May, 1)},
		{ID: "STU000002", PlanType: models.PlanOneTime, PlanAmount: 6000, PaidAmount: 6000,
			EnrollmentDate: day(2024, time.January, 1), PaymentStatus: models.StatusPaid},
	}}
	svc := NewSummaryService(students, &mockRecentPayments{}, nil, time.Minute, zap.NewNop(), fixedClock(day(2024, time.June, 1)))

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalStudents)
}
