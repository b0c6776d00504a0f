package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-principal-report/internal/repository"
	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
)

// CacheRepository abstracts persistence for cached report payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// CacheService wraps report caching with metrics. Cache faults never fail a report.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get loads the report cached for a school fingerprint. It returns true on a hit.
func (s *CacheService) Get(ctx context.Context, schoolID, fingerprint string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	key := repository.ReportCacheKey(schoolID, fingerprint)
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores a report under a school fingerprint.
func (s *CacheService) Set(ctx context.Context, schoolID, fingerprint string, value interface{}) {
	if !s.Enabled() {
		return
	}
	key := repository.ReportCacheKey(schoolID, fingerprint)
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Purge removes cached reports of one school, or all schools when schoolID is empty.
func (s *CacheService) Purge(ctx context.Context, schoolID string) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	pattern := repository.ReportCachePattern(schoolID)
	removed, err := s.repo.DeleteByPattern(ctx, pattern)
	if err != nil {
		s.logger.Warn("cache purge failed", zap.String("pattern", pattern), zap.Error(err))
		return removed, err
	}
	s.logger.Info("cache purged", zap.String("pattern", pattern), zap.Int64("removed", removed))
	return removed, nil
}
