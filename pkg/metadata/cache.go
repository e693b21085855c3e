package metadata

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/psantana5/worker-metadata/pkg/models"
)

// LocationCache is a process-scoped, write-once slot for the geolocation lookup.
//
// The first stored outcome wins and every later read returns the same pointer.
// Concurrent first lookups are collapsed into one call; a duplicate store is
// dropped by the compare-and-swap, so the read path takes no lock.
type LocationCache struct {
	slot          atomic.Pointer[locationEntry]
	group         singleflight.Group
	cacheFailures bool
}

type locationEntry struct {
	geo *models.GeoInfo
}

// CacheOption configures a LocationCache
type CacheOption func(*LocationCache)

// WithFailureCaching controls whether a failed lookup is remembered as
// "no location" for the lifetime of the cache. Enabled by default.
func WithFailureCaching(enabled bool) CacheOption {
	return func(c *LocationCache) {
		c.cacheFailures = enabled
	}
}

// NewLocationCache creates an empty cache
func NewLocationCache(opts ...CacheOption) *LocationCache {
	c := &LocationCache{cacheFailures: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached location, running compute only when the slot is empty.
// compute runs without ctx's cancellation; its result is shared by every caller.
func (c *LocationCache) GetOrCompute(ctx context.Context, compute func(context.Context) (*models.GeoInfo, error)) (*models.GeoInfo, error) {
	if e := c.slot.Load(); e != nil {
		return e.geo, nil
	}

	v, err, _ := c.group.Do("location", func() (interface{}, error) {
		if e := c.slot.Load(); e != nil {
			return e.geo, nil
		}

		geo, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			geo = nil
			if !c.cacheFailures {
				return nil, err
			}
		}

		c.slot.CompareAndSwap(nil, &locationEntry{geo: geo})
		return c.slot.Load().geo, err
	})

	geo, _ := v.(*models.GeoInfo)
	return geo, err
}

// Cached returns the stored location and whether the slot has been filled
func (c *LocationCache) Cached() (*models.GeoInfo, bool) {
	e := c.slot.Load()
	if e == nil {
		return nil, false
	}
	return e.geo, true
}

// Reset empties the slot so the next call performs a fresh lookup
func (c *LocationCache) Reset() {
	c.slot.Store(nil)
}
