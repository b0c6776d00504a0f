package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/middleware"
	"github.com/noah-isme/sma-principal-report/internal/models"
	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

type fakeReportSrv struct {
	resp    *dto.PrincipalReportResponse
	hit     bool
	err     error
	lastReq models.PrincipalReportRequest
	calls   int
}

func (f *fakeReportSrv) Generate(_ context.Context, req models.PrincipalReportRequest) (*dto.PrincipalReportResponse, bool, error) {
	f.calls++
	f.lastReq = req
	return f.resp, f.hit, f.err
}

func newReportContext(target string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func TestPrincipalReportHandlerParsesFilters(t *testing.T) {
	srv := &fakeReportSrv{
		resp: &dto.PrincipalReportResponse{Meta: dto.ReportMeta{CacheKey: "abc", Version: dto.ReportVersion}},
		hit:  true,
	}
	handler := NewPrincipalReportHandler(srv)
	c, rec := newReportContext(
		"/principal/report?academic_year=1403-1404&grade_level=10&grade_level=11&class_id=c1,c2&lesson_id%5B%5D=l1&start_date=2024-01-01&end_date=2024-01-31&comparison_metric=activity_volume&comparison_order=bottom",
		&models.JWTClaims{UserID: "u1", SchoolID: "school-1", Role: models.RolePrincipal},
	)

	handler.Report(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.PrincipalReportRequest{
		SchoolID:         "school-1",
		AcademicYear:     "1403-1404",
		GradeLevels:      []string{"10", "11"},
		ClassIDs:         []string{"c1", "c2"},
		LessonIDs:        []string{"l1"},
		StartDate:        "2024-01-01",
		EndDate:          "2024-01-31",
		ComparisonMetric: models.ComparisonMetricActivityVolume,
		ComparisonOrder:  models.ComparisonOrderBottom,
	}, srv.lastReq)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	meta := envelope.Data["meta"].(map[string]interface{})
	assert.Equal(t, "abc", meta["cacheKey"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestPrincipalReportHandlerRequiresSchoolClaim(t *testing.T) {
	srv := &fakeReportSrv{}
	handler := NewPrincipalReportHandler(srv)

	c, rec := newReportContext("/principal/report", &models.JWTClaims{UserID: "u1", Role: models.RolePrincipal})
	handler.Report(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newReportContext("/principal/report", nil)
	handler.Report(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, srv.calls)
}

func TestPrincipalReportHandlerHidesInternalErrors(t *testing.T) {
	cause := errors.New("pq: connection refused")
	srv := &fakeReportSrv{err: appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)}
	handler := NewPrincipalReportHandler(srv)
	c, rec := newReportContext("/principal/report", &models.JWTClaims{UserID: "u1", SchoolID: "school-1", Role: models.RolePrincipal})

	handler.Report(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INTERNAL_ERROR", envelope.Error.Code)
	assert.Nil(t, envelope.Data)
	assert.Len(t, c.Errors, 1)
}

func TestPrincipalReportHandlerValidationError(t *testing.T) {
	srv := &fakeReportSrv{err: appErrors.Clone(appErrors.ErrValidation, "invalid report request")}
	handler := NewPrincipalReportHandler(srv)
	c, rec := newReportContext("/principal/report?comparison_metric=median", &models.JWTClaims{UserID: "u1", SchoolID: "school-1", Role: models.RolePrincipal})

	handler.Report(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "median", srv.lastReq.ComparisonMetric)
}
