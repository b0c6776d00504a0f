package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/middleware"
	"github.com/noah-isme/sma-principal-report/internal/models"
	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
	"github.com/noah-isme/sma-principal-report/pkg/response"
)

type principalReportService interface {
	Generate(ctx context.Context, req models.PrincipalReportRequest) (*dto.PrincipalReportResponse, bool, error)
}

// PrincipalReportHandler serves the principal performance report.
type PrincipalReportHandler struct {
	service principalReportService
}

// NewPrincipalReportHandler constructs the handler.
func NewPrincipalReportHandler(service principalReportService) *PrincipalReportHandler {
	return &PrincipalReportHandler{service: service}
}

// Report godoc
// @Summary Principal performance report
// @Description KPIs, trends, class comparison, insights and data-health actions for the caller's school
// @Tags PrincipalReport
// @Produce json
// @Security BearerAuth
// @Param academic_year query string false "Academic year. Defaults to the latest available"
// @Param grade_level query []string false "Grade level filter" collectionFormat(multi)
// @Param class_id query []string false "Class filter" collectionFormat(multi)
// @Param lesson_id query []string false "Lesson (subject) filter" collectionFormat(multi)
// @Param start_date query string false "Period start (YYYY-MM-DD)"
// @Param end_date query string false "Period end (YYYY-MM-DD)"
// @Param comparison_metric query string false "average_score or activity_volume"
// @Param comparison_order query string false "top or bottom"
// @Success 200 {object} response.Envelope{data=dto.PrincipalReportResponse}
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /principal/report [get]
func (h *PrincipalReportHandler) Report(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.SchoolID == "" {
		response.Error(c, appErrors.ErrSessionMalformed)
		return
	}

	req := models.PrincipalReportRequest{
		SchoolID:         claims.SchoolID,
		AcademicYear:     strings.TrimSpace(c.Query("academic_year")),
		GradeLevels:      queryList(c, "grade_level"),
		ClassIDs:         queryList(c, "class_id"),
		LessonIDs:        queryList(c, "lesson_id"),
		StartDate:        c.Query("start_date"),
		EndDate:          c.Query("end_date"),
		ComparisonMetric: strings.TrimSpace(c.Query("comparison_metric")),
		ComparisonOrder:  strings.TrimSpace(c.Query("comparison_order")),
	}

	start := time.Now()
	report, cacheHit, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, middleware.MetaProcessingTime, time.Since(start).Milliseconds())
	response.JSON(c, http.StatusOK, report, middleware.ExtractMeta(c))
}

// queryList accepts repeated keys, the bracketed form and comma separated values.
func queryList(c *gin.Context, key string) []string {
	raw := append(c.QueryArray(key), c.QueryArray(key+"[]")...)
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
