package metadata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/worker-metadata/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestLocationCacheComputesOnce(t *testing.T) {
	cache := NewLocationCache()
	var calls int32

	compute := func(ctx context.Context) (*models.GeoInfo, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return &models.GeoInfo{City: strPtr("Berlin")}, nil
	}

	var wg sync.WaitGroup
	results := make([]*models.GeoInfo, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			geo, err := cache.GetOrCompute(context.Background(), compute)
			assert.NoError(t, err)
			results[i] = geo
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, geo := range results {
		assert.Same(t, results[0], geo)
	}
}

func TestLocationCacheRemembersFailure(t *testing.T) {
	cache := NewLocationCache()
	calls := 0
	compute := func(ctx context.Context) (*models.GeoInfo, error) {
		calls++
		return nil, errors.New("dial tcp: i/o timeout")
	}

	geo, err := cache.GetOrCompute(context.Background(), compute)
	assert.Nil(t, geo)
	assert.Error(t, err)

	geo, err = cache.GetOrCompute(context.Background(), compute)
	assert.Nil(t, geo)
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLocationCacheWithoutFailureCaching(t *testing.T) {
	cache := NewLocationCache(WithFailureCaching(false))
	calls := 0
	compute := func(ctx context.Context) (*models.GeoInfo, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("temporary failure in name resolution")
		}
		return &models.GeoInfo{Country: strPtr("Japan")}, nil
	}

	geo, err := cache.GetOrCompute(context.Background(), compute)
	assert.Nil(t, geo)
	assert.Error(t, err)
	_, ok := cache.Cached()
	assert.False(t, ok)

	geo, err = cache.GetOrCompute(context.Background(), compute)
	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.Equal(t, "Japan", *geo.Country)
	assert.Equal(t, 2, calls)
}

func TestLocationCacheReset(t *testing.T) {
	cache := NewLocationCache()
	n := 0
	compute := func(ctx context.Context) (*models.GeoInfo, error) {
		n++
		return &models.GeoInfo{}, nil
	}

	first, _ := cache.GetOrCompute(context.Background(), compute)
	cache.Reset()
	second, _ := cache.GetOrCompute(context.Background(), compute)

	assert.Equal(t, 2, n)
	assert.NotSame(t, first, second)
}

func TestGetOrComputeDetachesCancellation(t *testing.T) {
	cache := NewLocationCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	city := "Oslo"
	geo, err := cache.GetOrCompute(ctx, func(ctx context.Context) (*models.GeoInfo, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &models.GeoInfo{City: &city}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, geo)
	assert.Equal(t, "Oslo", *geo.City)
}
