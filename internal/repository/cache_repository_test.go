package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-principal-report/pkg/errors"
)

func TestReportCacheKeyNamespacesBySchool(t *testing.T) {
	assert.Equal(t, "principal_report:v1:school-1:abc", ReportCacheKey("school-1", "abc"))
	assert.Equal(t, "principal_report:v1:school-1:*", ReportCachePattern("school-1"))
	assert.Equal(t, "principal_report:v1:*", ReportCachePattern(""))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	err := repo.Get(ctx, "k", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))

	require.NoError(t, repo.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute))

	removed, err := repo.DeleteByPattern(ctx, "*")
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}

func TestCacheRepositoryWrapsTransportErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewCacheRepository(client, nil)
	defer repo.Close()

	var dest map[string]string
	err := repo.Get(context.Background(), "k", &dest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Contains(t, err.Error(), "redis get k")

	err = repo.Set(context.Background(), "k", "v", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set k")
}
