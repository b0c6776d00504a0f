package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/internal/repository"
	"github.com/noah-isme/sma-principal-report/internal/service"
	"github.com/noah-isme/sma-principal-report/pkg/cache"
	"github.com/noah-isme/sma-principal-report/pkg/config"
	"github.com/noah-isme/sma-principal-report/pkg/database"
	"github.com/noah-isme/sma-principal-report/pkg/logger"
)

type generateFlags struct {
	school       string
	academicYear string
	gradeLevels  []string
	classIDs     []string
	lessonIDs    []string
	start        string
	end          string
	metric       string
	order        string
	noCache      bool
}

func (f generateFlags) request() models.PrincipalReportRequest {
	return models.PrincipalReportRequest{
		SchoolID:         strings.TrimSpace(f.school),
		AcademicYear:     strings.TrimSpace(f.academicYear),
		GradeLevels:      f.gradeLevels,
		ClassIDs:         f.classIDs,
		LessonIDs:        f.lessonIDs,
		StartDate:        f.start,
		EndDate:          f.end,
		ComparisonMetric: f.metric,
		ComparisonOrder:  f.order,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "reportctl",
		Short:        "Operate the principal report outside the HTTP gateway",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newCacheCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a principal report for a school and print it as JSON",
	}
	flags := bindGenerateFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		app, err := openApp(cmd.Context(), !flags.noCache)
		if err != nil {
			return err
		}
		defer app.close()

		report, cached, err := app.reports.Generate(cmd.Context(), flags.request())
		if err != nil {
			return err
		}
		app.logger.Info("report generated", zap.String("school_id", flags.school), zap.Bool("cache_hit", cached))
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return cmd
}

func bindGenerateFlags(cmd *cobra.Command) *generateFlags {
	flags := &generateFlags{}
	f := cmd.Flags()
	f.StringVar(&flags.school, "school", "", "school identifier")
	f.StringVar(&flags.academicYear, "academic-year", "", "academic year, defaults to the latest")
	f.StringSliceVar(&flags.gradeLevels, "grade-level", nil, "grade level filter (repeatable)")
	f.StringSliceVar(&flags.classIDs, "class-id", nil, "class filter (repeatable)")
	f.StringSliceVar(&flags.lessonIDs, "lesson-id", nil, "lesson filter (repeatable)")
	f.StringVar(&flags.start, "start", "", "period start, YYYY-MM-DD")
	f.StringVar(&flags.end, "end", "", "period end, YYYY-MM-DD")
	f.StringVar(&flags.metric, "metric", "", "class comparison metric: average_score or activity_volume")
	f.StringVar(&flags.order, "order", "", "class comparison order: top or bottom")
	f.BoolVar(&flags.noCache, "no-cache", false, "bypass the report cache")
	_ = cmd.MarkFlagRequired("school")
	return flags
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{Use: "cache", Short: "Manage cached principal reports"}

	var school string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Drop cached reports for one school, or every school when --school is omitted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.close()
			if !app.cache.Enabled() {
				return fmt.Errorf("report cache is disabled, set ENABLE_REPORT_CACHE=true")
			}

			removed, err := app.cache.Purge(cmd.Context(), strings.TrimSpace(school))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached report(s)\n", removed)
			return nil
		},
	}
	purge.Flags().StringVar(&school, "school", "", "school identifier")
	cacheCmd.AddCommand(purge)
	return cacheCmd
}

type cliApp struct {
	logger  *zap.Logger
	cache   *service.CacheService
	reports *service.PrincipalReportService
	closers []func() error
}

func (r *cliApp) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
	_ = r.logger.Sync()
}

func openApp(ctx context.Context, useCache bool) (*cliApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	rt := &cliApp{logger: logr}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	var redisClient *redis.Client
	if useCache {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	rt.closers = append(rt.closers, cacheRepo.Close)

	metrics := service.NewMetricsService()
	rt.cache = service.NewCacheService(cacheRepo, metrics, cfg.PrincipalReport.CacheTTL, logr, useCache && cfg.PrincipalReport.CacheEnabled && redisClient != nil)

	repo := repository.NewPrincipalReportRepository(db)
	if err := repo.Ping(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	rt.reports = service.NewPrincipalReportService(
		service.SourceFromRepository(repo),
		rt.cache,
		metrics,
		validator.New(),
		logr,
		service.PrincipalReportOptions{Timeout: cfg.PrincipalReport.Timeout, Parallel: cfg.PrincipalReport.Parallel},
	)
	return rt, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
