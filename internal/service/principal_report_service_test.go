package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/internal/repository"
	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
)

type fakeReportReader struct {
	mu       sync.Mutex
	calls    []string
	filters  []models.ReportFilter
	failOn   string
	block    bool
	blockErr error
	closed   bool
	options  models.ReportFilterOptions
	classes  []models.ClassActivityRow
	teachers []models.TeacherStatRow
}

func (f *fakeReportReader) record(ctx context.Context, name string, filter models.ReportFilter) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		if f.blockErr != nil {
			return f.blockErr
		}
		return ctx.Err()
	}
	if f.failOn == name {
		return errors.New("pq: relation does not exist")
	}
	return nil
}

func (f *fakeReportReader) FilterOptions(ctx context.Context, schoolID string) (models.ReportFilterOptions, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "filter_options")
	f.mu.Unlock()
	return f.options, nil
}

func (f *fakeReportReader) KPIs(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) (models.KPIPair, error) {
	return models.KPIPair{Current: models.KPIRow{ActiveStudents: nullInt(12), AssessedStudents: nullInt(3)}}, f.record(ctx, "kpis", filter)
}

func (f *fakeReportReader) ActivityTrend(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) ([]models.TrendRow, error) {
	return nil, f.record(ctx, "activity_trend", filter)
}

func (f *fakeReportReader) ClassComparison(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) ([]models.ClassActivityRow, error) {
	return f.classes, f.record(ctx, "class_comparison", filter)
}

func (f *fakeReportReader) TeacherStats(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) ([]models.TeacherStatRow, error) {
	return f.teachers, f.record(ctx, "teacher_stats", filter)
}

func (f *fakeReportReader) StudentWeekStats(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) ([]models.StudentWeekRow, error) {
	return nil, f.record(ctx, "student_week_stats", filter)
}

func (f *fakeReportReader) AIUsage(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) (models.AIUsageRows, error) {
	return models.AIUsageRows{}, f.record(ctx, "ai_usage", filter)
}

func (f *fakeReportReader) DataHealth(ctx context.Context, _ *repository.ClassScope, filter models.ReportFilter) (models.DataHealthRow, error) {
	return models.DataHealthRow{StudentsWithoutGuardian: nullInt(4)}, f.record(ctx, "data_health", filter)
}

func (f *fakeReportReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReportReader) queried(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeReportSource struct {
	reader *fakeReportReader
	pinned []bool
}

func (s *fakeReportSource) Open(_ context.Context, pinned bool) (PrincipalReportReader, error) {
	s.pinned = append(s.pinned, pinned)
	return s.reader, nil
}

func newTestReportService(reader *fakeReportReader, cache *CacheService, opts PrincipalReportOptions) (*PrincipalReportService, *fakeReportSource) {
	source := &fakeReportSource{reader: reader}
	svc := NewPrincipalReportService(source, cache, NewMetricsService(), nil, nil, opts)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC) }
	return svc, source
}

func TestGenerateAppliesDefaultsOnPinnedConnection(t *testing.T) {
	reader := &fakeReportReader{
		options: models.ReportFilterOptions{AcademicYears: []string{"1402-1403", "1403-1404"}},
		classes: []models.ClassActivityRow{
			{ClassID: "idle", ActivityCount: nullInt(0)},
			{ClassID: "busy", ActivityCount: nullInt(8), AverageScore: nullFloat(72)},
		},
	}
	svc, source := newTestReportService(reader, nil, PrincipalReportOptions{})

	report, cached, err := svc.Generate(context.Background(), models.PrincipalReportRequest{
		SchoolID:    "school-1",
		GradeLevels: []string{" 11", "10", "11", ""},
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []bool{true}, source.pinned)
	assert.True(t, reader.closed)

	require.NotNil(t, report.Filters.Defaults.AcademicYear)
	assert.Equal(t, "1403-1404", *report.Filters.Defaults.AcademicYear)
	assert.Equal(t, "1403-1404", *report.Filters.Current.AcademicYear)
	assert.Equal(t, []string{"1403-1404", "1402-1403"}, report.Filters.Options.AcademicYears)
	assert.Equal(t, []string{"10", "11"}, report.Filters.Current.GradeLevels)
	assert.Equal(t, "2024-02-09", report.Filters.Current.StartDate)
	assert.Equal(t, "2024-03-10", report.Filters.Current.EndDate)
	assert.Equal(t, "2024-02-09", report.Filters.Defaults.StartDate)

	assert.Equal(t, models.ComparisonMetricAverageScore, report.Trends.ClassComparison.Metric)
	require.Len(t, report.Trends.ClassComparison.Items, 2)
	assert.Equal(t, "busy", report.Trends.ClassComparison.Items[0].ClassID)
	assert.Equal(t, "idle", report.Trends.ClassComparison.Items[1].ClassID)
	assert.Nil(t, report.Trends.ClassComparison.Items[1].AverageScore)

	require.Len(t, report.KPIs.Cards, 6)
	assert.Equal(t, 25.0, *report.KPIs.Cards[5].Value)

	require.Len(t, report.Actions.Items, 1)
	assert.Equal(t, ActionStudentsWithoutGuardian, report.Actions.Items[0].Key)

	assert.Equal(t, dto.ReportVersion, report.Meta.Version)
	assert.Equal(t, models.GranularityDay, report.Meta.Granularity)
	assert.Len(t, report.Meta.CacheKey, 64)
	assert.NotNil(t, report.Insights.Teachers)

	for _, f := range reader.filters {
		assert.Equal(t, "1403-1404", f.AcademicYear)
	}
	assert.Equal(t, 1, reader.queried("data_health"))
}

func TestGenerateParallelUsesPool(t *testing.T) {
	reader := &fakeReportReader{}
	svc, source := newTestReportService(reader, nil, PrincipalReportOptions{Parallel: true})

	_, _, err := svc.Generate(context.Background(), models.PrincipalReportRequest{SchoolID: "school-1"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, source.pinned)
	for _, name := range []string{"kpis", "activity_trend", "class_comparison", "teacher_stats", "student_week_stats", "ai_usage", "data_health"} {
		assert.Equal(t, 1, reader.queried(name), name)
	}
}

func TestGenerateQueryFailureAbortsWholeReport(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		reader := &fakeReportReader{failOn: "teacher_stats"}
		repo := newMemoryCacheRepo()
		cache := NewCacheService(repo, nil, time.Minute, nil, true)
		svc, _ := newTestReportService(reader, cache, PrincipalReportOptions{Parallel: parallel})

		report, _, err := svc.Generate(context.Background(), models.PrincipalReportRequest{SchoolID: "school-1"})
		require.Error(t, err)
		assert.Nil(t, report)
		assert.True(t, errors.Is(err, appErrors.ErrInternal))
		assert.Equal(t, "internal server error", appErrors.FromError(err).Message)
		assert.True(t, reader.closed)
		assert.Empty(t, repo.items)
		if !parallel {
			assert.Zero(t, reader.queried("student_week_stats"))
		}
	}
}

func TestGenerateRejectsInvalidRequestBeforeQuerying(t *testing.T) {
	reader := &fakeReportReader{}
	svc, source := newTestReportService(reader, nil, PrincipalReportOptions{})

	_, _, err := svc.Generate(context.Background(), models.PrincipalReportRequest{SchoolID: "school-1", ComparisonMetric: "median"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, source.pinned)

	_, _, err = svc.Generate(context.Background(), models.PrincipalReportRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestGenerateServesCachedReport(t *testing.T) {
	reader := &fakeReportReader{}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc, _ := newTestReportService(reader, cache, PrincipalReportOptions{})
	req := models.PrincipalReportRequest{SchoolID: "school-1", StartDate: "2024-03-01", EndDate: "2024-03-07"}

	first, cached, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Meta.CacheKey, second.Meta.CacheKey)
	assert.Equal(t, 1, reader.queried("kpis"))
	assert.Equal(t, 2, reader.queried("filter_options"))
}

func TestGenerateTimesOut(t *testing.T) {
	reader := &fakeReportReader{block: true}
	svc, _ := newTestReportService(reader, nil, PrincipalReportOptions{Timeout: 20 * time.Millisecond})

	_, _, err := svc.Generate(context.Background(), models.PrincipalReportRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnavailable))
	assert.True(t, reader.closed)
}

func TestGenerateTimesOutWhenDriverHidesDeadline(t *testing.T) {
	reader := &fakeReportReader{block: true, blockErr: errors.New("query current kpis: pq: canceling statement due to user request")}
	source := &fakeReportSource{reader: reader}
	metrics := NewMetricsService()
	svc := NewPrincipalReportService(source, nil, metrics, nil, nil, PrincipalReportOptions{Timeout: 20 * time.Millisecond})

	_, _, err := svc.Generate(context.Background(), models.PrincipalReportRequest{SchoolID: "school-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnavailable))
	assert.Equal(t, "report generation timed out", appErrors.FromError(err).Message)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reportsGenerated.WithLabelValues(OutcomeTimeout)))
	assert.Zero(t, testutil.ToFloat64(metrics.reportsGenerated.WithLabelValues(OutcomeFailed)))
	assert.True(t, reader.closed)
}

func TestCacheKeyDependsOnFilterStateOnly(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	options := models.ReportFilterOptions{}

	a, _ := resolveFilter(models.PrincipalReportRequest{SchoolID: "s", ClassIDs: []string{"c2", "c1"}}, options, now)
	b, _ := resolveFilter(models.PrincipalReportRequest{SchoolID: "s", ClassIDs: []string{"c1", "c2", "c1"}}, options, now.Add(3*time.Hour))
	assert.Equal(t, cacheKey(a), cacheKey(b))

	c, _ := resolveFilter(models.PrincipalReportRequest{SchoolID: "s", ClassIDs: []string{"c1", "c2"}, ComparisonOrder: models.ComparisonOrderBottom}, options, now)
	assert.NotEqual(t, cacheKey(a), cacheKey(c))

	d, _ := resolveFilter(models.PrincipalReportRequest{SchoolID: "other", ClassIDs: []string{"c1", "c2"}}, options, now)
	assert.NotEqual(t, cacheKey(a), cacheKey(d))
}

func TestResolveFilterKeepsExplicitAcademicYear(t *testing.T) {
	options := models.ReportFilterOptions{AcademicYears: []string{"1402-1403", "1403-1404"}}
	filter, defaults := resolveFilter(models.PrincipalReportRequest{SchoolID: "s", AcademicYear: "1402-1403"}, options, time.Now())

	assert.Equal(t, "1402-1403", filter.AcademicYear)
	assert.Equal(t, "1403-1404", *defaults.AcademicYear)
	assert.Equal(t, models.ComparisonOrderTop, filter.ComparisonOrder)
}
