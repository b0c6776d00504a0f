package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-principal-report/internal/dto"
	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/internal/repository"
	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
	"github.com/noah-isme/sma-principal-report/pkg/middleware/requestid"
)

const (
	classComparisonLimit = 5
	studentRankingLimit  = 10
	defaultReportTimeout = 15 * time.Second
)

// PrincipalReportReader runs the report aggregates for one request.
type PrincipalReportReader interface {
	FilterOptions(ctx context.Context, schoolID string) (models.ReportFilterOptions, error)
	KPIs(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) (models.KPIPair, error)
	ActivityTrend(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) ([]models.TrendRow, error)
	ClassComparison(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) ([]models.ClassActivityRow, error)
	TeacherStats(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) ([]models.TeacherStatRow, error)
	StudentWeekStats(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) ([]models.StudentWeekRow, error)
	AIUsage(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) (models.AIUsageRows, error)
	DataHealth(ctx context.Context, scope *repository.ClassScope, filter models.ReportFilter) (models.DataHealthRow, error)
	Close() error
}

// PrincipalReportSource opens a reader. A pinned reader must serve every query from one connection.
type PrincipalReportSource interface {
	Open(ctx context.Context, pinned bool) (PrincipalReportReader, error)
}

type repositorySource struct {
	repo *repository.PrincipalReportRepository
}

// SourceFromRepository adapts the SQL repository to PrincipalReportSource.
func SourceFromRepository(repo *repository.PrincipalReportRepository) PrincipalReportSource {
	return repositorySource{repo: repo}
}

func (s repositorySource) Open(ctx context.Context, pinned bool) (PrincipalReportReader, error) {
	reader, err := s.repo.Open(ctx, pinned)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// PrincipalReportOptions tunes report execution.
type PrincipalReportOptions struct {
	Timeout  time.Duration
	Parallel bool
}

// PrincipalReportService computes the principal performance report.
type PrincipalReportService struct {
	source   PrincipalReportSource
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	opts     PrincipalReportOptions
	now      func() time.Time
}

// NewPrincipalReportService constructs the report service.
func NewPrincipalReportService(source PrincipalReportSource, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts PrincipalReportOptions) *PrincipalReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultReportTimeout
	}
	return &PrincipalReportService{
		source:   source,
		cache:    cache,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

type reportSections struct {
	kpis     models.KPIPair
	trend    []models.TrendRow
	classes  []models.ClassActivityRow
	teachers []models.TeacherStatRow
	students []models.StudentWeekRow
	aiUsage  models.AIUsageRows
	health   models.DataHealthRow
}

type sectionQuery struct {
	name string
	run  func(ctx context.Context) error
}

// Generate returns the report for req and whether it was served from cache.
func (s *PrincipalReportService) Generate(ctx context.Context, req models.PrincipalReportRequest) (*dto.PrincipalReportResponse, bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	reader, err := s.source.Open(ctx, !s.opts.Parallel)
	if err != nil {
		return nil, false, s.fail(ctx, started, "open", err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			s.logger.Warn("release report connection", zap.String("request_id", requestid.FromContext(ctx)), zap.Error(cerr))
		}
	}()

	queryStart := time.Now()
	options, err := reader.FilterOptions(ctx, req.SchoolID)
	if err != nil {
		return nil, false, s.fail(ctx, started, "filter_options", err)
	}
	s.metrics.ObserveDBQuery("filter_options", time.Since(queryStart))

	now := s.now()
	filter, defaults := resolveFilter(req, options, now)
	key := cacheKey(filter)

	var cached dto.PrincipalReportResponse
	if s.cache.Get(ctx, filter.SchoolID, key, &cached) {
		s.metrics.ObserveReport(OutcomeCached, time.Since(started))
		return &cached, true, nil
	}

	scope := repository.NewClassScope(filter)
	sections, err := s.collect(ctx, reader, scope, filter)
	if err != nil {
		return nil, false, s.fail(ctx, started, "collect", err)
	}

	report := assembleReport(filter, options, defaults, sections, key, now)
	s.cache.Set(ctx, filter.SchoolID, key, report)

	elapsed := time.Since(started)
	s.metrics.ObserveReport(OutcomeGenerated, elapsed)
	s.logger.Info("principal report generated",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("school_id", filter.SchoolID),
		zap.String("cache_key", key),
		zap.String("granularity", filter.Window.Granularity),
		zap.Duration("duration", elapsed),
	)
	return report, false, nil
}

func (s *PrincipalReportService) fail(ctx context.Context, started time.Time, stage string, err error) error {
	reqID := zap.String("request_id", requestid.FromContext(ctx))
	// lib/pq reports a cancelled statement as a server error that does not wrap the context error.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.metrics.ObserveReport(OutcomeTimeout, time.Since(started))
		s.logger.Error("principal report timed out", reqID, zap.String("stage", stage), zap.Duration("timeout", s.opts.Timeout), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "report generation timed out")
	}
	s.metrics.ObserveReport(OutcomeFailed, time.Since(started))
	s.logger.Error("principal report failed", reqID, zap.String("stage", stage), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}

// collect runs every aggregate. Sequential on a pinned reader; fanned out otherwise, with the
// first failure cancelling the rest.
func (s *PrincipalReportService) collect(ctx context.Context, reader PrincipalReportReader, scope *repository.ClassScope, filter models.ReportFilter) (reportSections, error) {
	var out reportSections
	queries := []sectionQuery{
		{name: "kpis", run: func(ctx context.Context) (err error) {
			out.kpis, err = reader.KPIs(ctx, scope, filter)
			return err
		}},
		{name: "activity_trend", run: func(ctx context.Context) (err error) {
			out.trend, err = reader.ActivityTrend(ctx, scope, filter)
			return err
		}},
		{name: "class_comparison", run: func(ctx context.Context) (err error) {
			out.classes, err = reader.ClassComparison(ctx, scope, filter)
			return err
		}},
		{name: "teacher_stats", run: func(ctx context.Context) (err error) {
			out.teachers, err = reader.TeacherStats(ctx, scope, filter)
			return err
		}},
		{name: "student_week_stats", run: func(ctx context.Context) (err error) {
			out.students, err = reader.StudentWeekStats(ctx, scope, filter)
			return err
		}},
		{name: "ai_usage", run: func(ctx context.Context) (err error) {
			out.aiUsage, err = reader.AIUsage(ctx, scope, filter)
			return err
		}},
		{name: "data_health", run: func(ctx context.Context) (err error) {
			out.health, err = reader.DataHealth(ctx, scope, filter)
			return err
		}},
	}

	timed := func(ctx context.Context, q sectionQuery) error {
		start := time.Now()
		if err := q.run(ctx); err != nil {
			return err
		}
		s.metrics.ObserveDBQuery(q.name, time.Since(start))
		return nil
	}

	if !s.opts.Parallel {
		for _, q := range queries {
			if err := timed(ctx, q); err != nil {
				return reportSections{}, err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		q := q
		g.Go(func() error { return timed(gctx, q) })
	}
	if err := g.Wait(); err != nil {
		return reportSections{}, err
	}
	return out, nil
}

// resolveFilter normalises the request into the filter every aggregate is scoped by, and
// returns the defaults echoed back to the caller.
func resolveFilter(req models.PrincipalReportRequest, options models.ReportFilterOptions, now time.Time) (models.ReportFilter, dto.FilterDefaults) {
	years := append([]string(nil), options.AcademicYears...)
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	defaultWindow := ResolveReportWindow("", "", now)
	defaults := dto.FilterDefaults{
		StartDate: defaultWindow.CurrentStart.Format(reportDateLayout),
		EndDate:   defaultWindow.CurrentEnd.Format(reportDateLayout),
	}
	if len(years) > 0 {
		defaults.AcademicYear = &years[0]
	}

	academicYear := req.AcademicYear
	if academicYear == "" && defaults.AcademicYear != nil {
		academicYear = *defaults.AcademicYear
	}

	metric := req.ComparisonMetric
	if metric == "" {
		metric = models.ComparisonMetricAverageScore
	}
	order := req.ComparisonOrder
	if order == "" {
		order = models.ComparisonOrderTop
	}

	return models.ReportFilter{
		SchoolID:         req.SchoolID,
		AcademicYear:     academicYear,
		GradeLevels:      normaliseList(req.GradeLevels),
		ClassIDs:         normaliseList(req.ClassIDs),
		LessonIDs:        normaliseList(req.LessonIDs),
		Window:           ResolveReportWindow(req.StartDate, req.EndDate, now),
		ComparisonMetric: metric,
		ComparisonOrder:  order,
	}, defaults
}

type filterFingerprint struct {
	SchoolID         string   `json:"schoolId"`
	AcademicYear     string   `json:"academicYear"`
	GradeLevels      []string `json:"gradeLevels"`
	ClassIDs         []string `json:"classIds"`
	LessonIDs        []string `json:"lessonIds"`
	Start            string   `json:"start"`
	End              string   `json:"end"`
	ComparisonMetric string   `json:"comparisonMetric"`
	ComparisonOrder  string   `json:"comparisonOrder"`
	Version          int      `json:"version"`
}

// cacheKey hashes the resolved filter state. Equal filters always produce equal keys.
func cacheKey(filter models.ReportFilter) string {
	payload, _ := json.Marshal(filterFingerprint{
		SchoolID:         filter.SchoolID,
		AcademicYear:     filter.AcademicYear,
		GradeLevels:      nonNilStrings(filter.GradeLevels),
		ClassIDs:         nonNilStrings(filter.ClassIDs),
		LessonIDs:        nonNilStrings(filter.LessonIDs),
		Start:            filter.Window.CurrentStart.Format(time.RFC3339Nano),
		End:              filter.Window.CurrentEnd.Format(time.RFC3339Nano),
		ComparisonMetric: filter.ComparisonMetric,
		ComparisonOrder:  filter.ComparisonOrder,
		Version:          dto.ReportVersion,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func assembleReport(filter models.ReportFilter, options models.ReportFilterOptions, defaults dto.FilterDefaults, sections reportSections, key string, now time.Time) *dto.PrincipalReportResponse {
	var academicYear *string
	if filter.AcademicYear != "" {
		year := filter.AcademicYear
		academicYear = &year
	}

	return &dto.PrincipalReportResponse{
		Filters: dto.ReportFilters{
			Options:  buildFilterOptions(options),
			Defaults: defaults,
			Current: dto.FilterSelection{
				AcademicYear:     academicYear,
				GradeLevels:      nonNilStrings(filter.GradeLevels),
				ClassIDs:         nonNilStrings(filter.ClassIDs),
				LessonIDs:        nonNilStrings(filter.LessonIDs),
				StartDate:        filter.Window.CurrentStart.Format(reportDateLayout),
				EndDate:          filter.Window.CurrentEnd.Format(reportDateLayout),
				ComparisonMetric: filter.ComparisonMetric,
				ComparisonOrder:  filter.ComparisonOrder,
			},
		},
		KPIs: dto.ReportKPIs{Cards: buildKPICards(sections.kpis)},
		Trends: dto.ReportTrends{
			LearningActivityTrend: buildTrend(sections.trend),
			ClassComparison: dto.ClassComparison{
				Metric: filter.ComparisonMetric,
				Order:  filter.ComparisonOrder,
				Items:  RankClasses(sections.classes, filter.ComparisonMetric, filter.ComparisonOrder),
			},
		},
		Insights: dto.ReportInsights{
			Teachers: buildTeacherInsights(sections.teachers),
			Students: rankStudents(sections.students, filter.Window.WeekDays),
			AIUsage:  summariseAIUsage(sections.aiUsage),
		},
		Actions: dto.ReportActions{Items: buildActions(sections.health)},
		Meta: dto.ReportMeta{
			CacheKey:    key,
			GeneratedAt: now.UTC(),
			Granularity: filter.Window.Granularity,
			Version:     dto.ReportVersion,
		},
	}
}

func buildFilterOptions(options models.ReportFilterOptions) dto.FilterOptions {
	years := append([]string{}, options.AcademicYears...)
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	out := dto.FilterOptions{
		AcademicYears: years,
		GradeLevels:   nonNilStrings(options.GradeLevels),
		Classes:       make([]dto.ClassOption, 0, len(options.Classes)),
		Lessons:       make([]dto.LessonOption, 0, len(options.Lessons)),
	}
	for _, c := range options.Classes {
		out.Classes = append(out.Classes, dto.ClassOption{
			ID:           c.ID,
			Name:         c.Name,
			AcademicYear: c.AcademicYear,
			GradeLevel:   c.GradeLevel,
			Section:      c.Section,
		})
	}
	for _, l := range options.Lessons {
		out.Lessons = append(out.Lessons, dto.LessonOption{ID: l.ID, Name: l.Name})
	}
	return out
}
