// Package cache provides the in-memory response cache for protected fetches.
// Entries are keyed by URL and carry an absolute expiry; an expired entry is
// treated as absent even before the background sweep removes it.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// sweepSlack is added to the effective TTL to form the sweep interval,
// so a freshly written entry is never swept mid-window.
const sweepSlack = 500 * time.Millisecond

// TimeConfig is the shared default cache time. It is passed to every cache
// instance at construction; instances may shadow it with a local override.
// Mutating it affects all instances that have not set their own override.
type TimeConfig struct {
	mu  sync.RWMutex
	ttl time.Duration
}

// NewTimeConfig creates a shared cache-time configuration.
func NewTimeConfig(ttl time.Duration) *TimeConfig {
	return &TimeConfig{ttl: ttl}
}

// SetDefault changes the shared default cache time.
func (tc *TimeConfig) SetDefault(ttl time.Duration) {
	tc.mu.Lock()
	tc.ttl = ttl
	tc.mu.Unlock()
	log.Warn().Dur("ttl", ttl).Msg("Set shared default cache time")
}

// Default returns the shared default cache time.
func (tc *TimeConfig) Default() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ttl
}

type entry struct {
	content   string
	expiresAt time.Time
}

// Cache maps URLs to fetched content with per-entry expiry.
// A background sweep evicts expired entries for the lifetime of the cache;
// Close stops it.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	ignored  map[string]struct{}
	override time.Duration // per-instance TTL; 0 means use the shared default

	timecfg  *TimeConfig
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now allows tests to control time; defaults to time.Now.
	now func() time.Time
}

// New creates a cache bound to the shared time configuration and starts the
// background sweep. ignoredURLs seeds the set of URLs exempt from caching.
func New(tc *TimeConfig, ignoredURLs []string) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ignored: make(map[string]struct{}, len(ignoredURLs)),
		timecfg: tc,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	for _, u := range ignoredURLs {
		c.ignored[u] = struct{}{}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sweepLoop()
	}()

	log.Info().
		Dur("default_ttl", tc.Default()).
		Int("ignored_urls", len(ignoredURLs)).
		Msg("Response cache initialized")

	return c
}

// Lookup returns the cached content for url if a live entry exists.
// Expired entries are misses even if the sweep has not removed them yet.
func (c *Cache) Lookup(url string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.content, true
}

// Store caches content under url for the given TTL. URLs in the ignored set
// are never written; the read path is unaffected, so a pre-existing entry
// under an ignored URL keeps serving until it expires.
func (c *Cache) Store(url, content string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, skip := c.ignored[url]; skip {
		log.Debug().Str("url", url).Msg("URL is cache-exempt, not caching response")
		return
	}

	c.entries[url] = entry{
		content:   content,
		expiresAt: c.now().Add(ttl),
	}
	log.Debug().Str("url", url).Dur("ttl", ttl).Msg("Cached response")
}

// EffectiveTTL resolves the TTL for a fetch: the instance override if set,
// else the shared default. Resolved per call, never cached across calls.
func (c *Cache) EffectiveTTL() time.Duration {
	c.mu.RLock()
	override := c.override
	c.mu.RUnlock()

	if override > 0 {
		return override
	}
	return c.timecfg.Default()
}

// TimeConfig returns the shared time configuration this cache was built
// with, for callers that mutate the shared default.
func (c *Cache) TimeConfig() *TimeConfig {
	return c.timecfg
}

// SetInstanceTTL sets the per-instance cache time. Once set it shadows the
// shared default for this instance.
func (c *Cache) SetInstanceTTL(ttl time.Duration) {
	c.mu.Lock()
	c.override = ttl
	c.mu.Unlock()
	log.Info().Dur("ttl", ttl).Msg("Set instance cache time")
}

// SetIgnoredURLs replaces the set of URLs exempt from caching.
func (c *Cache) SetIgnoredURLs(urls []string) {
	ignored := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		ignored[u] = struct{}{}
	}

	c.mu.Lock()
	c.ignored = ignored
	c.mu.Unlock()
	log.Info().Strs("urls", urls).Msg("Set ignored URLs")
}

// IsIgnored reports whether url is exempt from caching.
func (c *Cache) IsIgnored(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ignored[url]
	return ok
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	log.Warn().Msg("Cleared response cache")
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background sweep. Safe to call multiple times.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// sweepLoop evicts expired entries at a fixed cadence of the effective TTL
// plus slack. The interval is recomputed each cycle so TTL changes take
// effect without restarting the cache.
func (c *Cache) sweepLoop() {
	for {
		timer := time.NewTimer(c.EffectiveTTL() + sweepSlack)
		select {
		case <-c.stopCh:
			timer.Stop()
			log.Debug().Msg("Cache sweep stopping")
			return
		case <-timer.C:
			c.sweep()
		}
	}
}

// sweep removes every entry whose expiry has passed.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		log.Debug().Msg("Response cache is empty, nothing to sweep")
		return
	}

	now := c.now()
	evicted := 0
	for url, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, url)
			evicted++
		}
	}

	log.Debug().
		Int("evicted", evicted).
		Int("remaining", len(c.entries)).
		Msg("Response cache swept")
}
