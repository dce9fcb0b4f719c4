// Package chain caches option-chain snapshots per expiry date, sourced from
// the broker gateway. Entries for past expiries are evicted on access.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/calendar"
	"github.com/nileshsurve/dalal_condor/internal/models"
)

// ErrUnavailable reports a chain miss: the expiry is absent from the chain
// master or the fetch failed. The cache is left unmodified; retry happens at
// the caller's next cycle, never inside the cache.
var ErrUnavailable = errors.New("option chain unavailable")

// Cache memoizes one OptionChain per expiry date.
type Cache struct {
	handle *broker.Handle
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	chains map[string]*models.OptionChain
}

// NewCache creates a chain cache reading through the given gateway handle.
func NewCache(handle *broker.Handle, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		handle: handle,
		logger: logger,
		now:    time.Now,
		chains: make(map[string]*models.OptionChain),
	}
}

// WithNow overrides the clock used for eviction decisions. Test hook.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

func dateKey(t time.Time) string {
	return t.Format(calendar.DateLayout)
}

// ForExpiry returns the chain for the given expiry date, fetching and caching
// it on first use. A missing expiry, missing token, or transport failure
// yields ErrUnavailable and leaves the cache unmodified.
func (c *Cache) ForExpiry(ctx context.Context, expiry time.Time) (*models.OptionChain, error) {
	key := dateKey(expiry)

	c.mu.Lock()
	c.evictExpiredLocked()
	if cached, ok := c.chains[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	gw := c.handle.Get()
	entries, err := gw.ChainMaster(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain master fetch failed for %s: %v", ErrUnavailable, key, err)
	}

	var entry *broker.ExpiryEntry
	for i := range entries {
		if dateKey(entries[i].Expiry) == key {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: expiry %s not listed in chain master", ErrUnavailable, key)
	}
	if entry.InstrumentToken == "" || entry.ExpiryTimestamp == "" {
		return nil, fmt.Errorf("%w: expiry %s has no chain tokens", ErrUnavailable, key)
	}

	chain, err := gw.Chain(ctx, entry.Expiry, entry.ExpiryTimestamp, entry.InstrumentToken)
	if err != nil {
		return nil, fmt.Errorf("%w: chain fetch failed for %s: %v", ErrUnavailable, key, err)
	}

	c.mu.Lock()
	c.chains[key] = chain
	c.mu.Unlock()
	c.logger.Printf("cached option chain for expiry %s (%d strikes)", key, len(chain.Contracts))
	return chain, nil
}

// Len returns the number of cached chains.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

// evictExpiredLocked drops entries whose expiry date is before today.
// Caller holds c.mu.
func (c *Cache) evictExpiredLocked() {
	today := dateKey(c.now())
	for key := range c.chains {
		if key < today {
			delete(c.chains, key)
			c.logger.Printf("evicted option chain for past expiry %s", key)
		}
	}
}
