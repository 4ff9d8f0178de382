package dedup

import (
	"context"
	"sync"
	"time"

	"go.vocdoni.io/dvote/log"
)

// MemoryCache remembers processed ids in process memory. Entries are dropped
// by a cleanup loop once they are older than the window.
type MemoryCache struct {
	ids    map[string]time.Time
	mutex  sync.RWMutex
	window time.Duration
	now    func() time.Time
}

// NewMemoryCache creates a cache and starts its cleanup loop, which runs every
// window until ctx is canceled. A zero window selects DefaultWindow.
func NewMemoryCache(ctx context.Context, window time.Duration) *MemoryCache {
	return newMemoryCache(ctx, window, time.Now)
}

func newMemoryCache(ctx context.Context, window time.Duration, now func() time.Time) *MemoryCache {
	if window == 0 {
		window = DefaultWindow
	}
	c := &MemoryCache{
		ids:    make(map[string]time.Time),
		window: window,
		now:    now,
	}
	go c.cleanup(ctx)
	return c
}

// Seen reports whether id was marked within the window.
func (c *MemoryCache) Seen(_ context.Context, id string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.live(id), nil
}

// Mark records id and reports whether it was not marked within the window.
// Check and insert happen under one lock, so concurrent deliveries of the same
// id see exactly one true.
func (c *MemoryCache) Mark(_ context.Context, id string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.live(id) {
		return false, nil
	}
	c.ids[id] = c.now()
	return true, nil
}

// Forget removes id.
func (c *MemoryCache) Forget(_ context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.ids, id)
	return nil
}

// ExpireOlderThan drops every id marked more than age ago.
func (c *MemoryCache) ExpireOlderThan(_ context.Context, age time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.now()
	for id, markedAt := range c.ids {
		if now.Sub(markedAt) > age {
			delete(c.ids, id)
		}
	}
	return nil
}

// Size returns the number of stored ids.
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.ids)
}

// live must be called with the mutex held.
func (c *MemoryCache) live(id string) bool {
	markedAt, ok := c.ids[id]
	return ok && c.now().Sub(markedAt) <= c.window
}

func (c *MemoryCache) cleanup(ctx context.Context) {
	ticker := time.NewTicker(c.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.ExpireOlderThan(ctx, c.window)
			log.Debugw("dedup cache cleaned", "size", c.Size())
		}
	}
}
