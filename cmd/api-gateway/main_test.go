package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/handler"
	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/internal/service"
	"github.com/noah-isme/sma-principal-report/pkg/config"
)

type stubReportService struct {
	schoolID string
}

func (s *stubReportService) Generate(_ context.Context, req models.PrincipalReportRequest) (*dto.PrincipalReportResponse, bool, error) {
	s.schoolID = req.SchoolID
	return &dto.PrincipalReportResponse{}, false, nil
}

func testConfig(enabled bool) *config.Config {
	return &config.Config{
		Env:             config.EnvDevelopment,
		APIPrefix:       "/api/v1",
		PrincipalReport: config.PrincipalReportConfig{Enabled: enabled},
	}
}

func signedToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID:   "user-1",
		SchoolID: "school-7",
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("router-secret"))
	require.NoError(t, err)
	return token
}

func newTestRouter(enabled bool, stub *stubReportService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return buildRouter(routerDeps{
		cfg:     testConfig(enabled),
		metrics: service.NewMetricsService(),
		auth:    service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: "router-secret"}),
		report:  handler.NewPrincipalReportHandler(stub),
	})
}

func serve(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/principal/report", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPrincipalReportRouteRequiresPrincipal(t *testing.T) {
	stub := &stubReportService{}
	r := newTestRouter(true, stub)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, signedToken(t, models.RoleTeacher)).Code)
	assert.Empty(t, stub.schoolID)

	rec := serve(r, signedToken(t, models.RolePrincipal))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "school-7", stub.schoolID)
}

func TestPrincipalReportRouteHiddenWhenDisabled(t *testing.T) {
	r := newTestRouter(false, &stubReportService{})
	assert.Equal(t, http.StatusNotFound, serve(r, signedToken(t, models.RolePrincipal)).Code)
}

func TestProbesAreMounted(t *testing.T) {
	r := newTestRouter(true, &stubReportService{})
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
