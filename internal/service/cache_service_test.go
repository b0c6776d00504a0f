package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
)

type memoryCacheRepo struct {
	mu       sync.Mutex
	items    map[string][]byte
	ttls     map[string]time.Duration
	getErr   error
	setErr   error
	patterns []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	var removed int64
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)

	var dest map[string]int
	assert.False(t, svc.Get(context.Background(), "school-1", "abc", &dest))

	svc.Set(context.Background(), "school-1", "abc", map[string]int{"n": 1})
	assert.Equal(t, 5*time.Minute, repo.ttls["principal_report:v1:school-1:abc"])

	require.True(t, svc.Get(context.Background(), "school-1", "abc", &dest))
	assert.Equal(t, 1, dest["n"])

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.cacheHitRatio))
}

func TestCacheServiceSwallowsBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection reset")
	repo.setErr = errors.New("connection reset")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var dest map[string]int
	assert.False(t, svc.Get(context.Background(), "school-1", "abc", &dest))
	assert.NotPanics(t, func() { svc.Set(context.Background(), "school-1", "abc", 1) })
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	svc.Set(context.Background(), "school-1", "abc", 1)
	assert.Empty(t, repo.items)

	removed, err := svc.Purge(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, repo.patterns)
}

func TestCacheServicePurgeIsSchoolScoped(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	svc.Set(context.Background(), "school-1", "a", 1)
	svc.Set(context.Background(), "school-1", "b", 2)
	svc.Set(context.Background(), "school-2", "a", 3)

	removed, err := svc.Purge(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, []string{"principal_report:v1:school-1:*"}, repo.patterns)
}
