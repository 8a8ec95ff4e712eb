package ci

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedTreeStatus wraps a TreeStatus with a short TTL cache and
// singleflight coalescing, so a burst of concurrent try-push creations
// across many PRs shares one upstream tree-status check instead of
// hammering it, adapted from the teacher's internal/api.dashboardCache.
type CachedTreeStatus struct {
	mu       sync.RWMutex
	upstream TreeStatus
	ttl      time.Duration
	group    singleflight.Group

	open      bool
	checked   bool
	checkedAt time.Time
}

// NewCachedTreeStatus wraps upstream with a cache valid for ttl.
func NewCachedTreeStatus(upstream TreeStatus, ttl time.Duration) *CachedTreeStatus {
	return &CachedTreeStatus{upstream: upstream, ttl: ttl}
}

func (c *CachedTreeStatus) IsOpen(ctx context.Context) (bool, error) {
	c.mu.RLock()
	if c.checked && time.Since(c.checkedAt) < c.ttl {
		open := c.open
		c.mu.RUnlock()
		return open, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do("is_open", func() (any, error) {
		c.mu.RLock()
		if c.checked && time.Since(c.checkedAt) < c.ttl {
			open := c.open
			c.mu.RUnlock()
			return open, nil
		}
		c.mu.RUnlock()

		open, err := c.upstream.IsOpen(ctx)
		if err != nil {
			return false, err
		}

		c.mu.Lock()
		c.open = open
		c.checked = true
		c.checkedAt = time.Now()
		c.mu.Unlock()

		return open, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}
