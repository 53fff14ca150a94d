package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type planConfigRepoMock struct {
	cfg    *models.PlanConfig
	getErr error
}

func (m *planConfigRepoMock) Get(ctx context.Context) (*models.PlanConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cfg == nil {
		defaults := models.DefaultPlanConfig()
		return &defaults, nil
	}
	return m.cfg, nil
}

func (m *planConfigRepoMock) Update(ctx context.Context, cfg *models.PlanConfig) error {
	m.cfg = cfg
	return nil
}

func newPlanConfigHandler(repo *planConfigRepoMock) *PlanConfigHandler {
	svc := service.NewPlanConfigService(repo, nil, nil, nil)
	return NewPlanConfigHandler(svc)
}

func TestPlanConfigHandlerGetDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newPlanConfigHandler(&planConfigRepoMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/plan-config", nil)

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, models.DefaultMonthlyAmount, data["monthly_amount"])
}

func TestPlanConfigHandlerUpdateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newPlanConfigHandler(&planConfigRepoMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPut, "/plan-config", bytes.NewReader([]byte(`not json`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Update(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlanConfigHandlerUpdateRejectsBadInterval(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &planConfigRepoMock{}
	handler := newPlanConfigHandler(repo)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.UpdatePlanConfigRequest{
		OneTimeAmount:           6000,
		MonthlyAmount:           850,
		InstallmentAmount:       2850,
		InstallmentIntervalMths: 13,
		ReminderDays:            7,
	})
	c.Request, _ = http.NewRequest(http.MethodPut, "/plan-config", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Update(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, repo.cfg, "rejected update must not persist")
}

func TestPlanConfigHandlerReset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	custom := models.DefaultPlanConfig()
	custom.MonthlyAmount = 999
	repo := &planConfigRepoMock{cfg: &custom}
	handler := newPlanConfigHandler(repo)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/plan-config/reset", nil)

	handler.Reset(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.cfg)
	assert.EqualValues(t, models.DefaultMonthlyAmount, repo.cfg.MonthlyAmount)
}
