// Package bypass orchestrates protected fetches: cache consultation, tab
// setup, challenge resolution, cookie persistence and failure recovery.
package bypass

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/alert"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/browser"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/cache"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/config"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/cookies"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

// Tab is the slice of a browser tab the fetch path drives. The concrete
// implementation is *browser.Tab; tests substitute a scripted fake.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	Content() (string, error)
	SetCookies([]types.Cookie) error
	Cookies() ([]types.Cookie, error)
	Click(selector string) error
	Screenshot(selector string) ([]byte, error)
	Close() error
}

// browserControl is the browser lifecycle surface the fetch loop needs:
// open a tab, recycle the process, shut down.
type browserControl interface {
	NewTab(ctx context.Context) (Tab, error)
	Teardown()
	Close() error
}

// rodControl adapts browser.Handle to browserControl.
type rodControl struct {
	handle *browser.Handle
	filter browser.Filter
}

func (r *rodControl) NewTab(ctx context.Context) (Tab, error) {
	return r.handle.NewTab(ctx, r.filter, browser.TabOptions{})
}

func (r *rodControl) Teardown() { r.handle.Teardown() }

func (r *rodControl) Close() error { return r.handle.Close() }

// FetchOptions tunes a single fetch. The zero value uses defaults.
type FetchOptions struct {
	// CacheTTL overrides the cache time for this fetch. Zero means the
	// requester's effective default.
	CacheTTL time.Duration
}

// Requester is the public surface of the acquisition layer. One instance
// owns one browser and one response cache; fetches for distinct URLs run
// concurrently, identical in-flight URLs are collapsed into one fetch.
type Requester struct {
	cfg     *config.Config
	ctrl    browserControl
	cache   *cache.Cache
	cookies *cookies.Bridge
	alerts  alert.Notifier

	flight singleflight.Group
}

// New wires a Requester over a browser handle. filter may be nil to disable
// request interception.
func New(cfg *config.Config, handle *browser.Handle, filter browser.Filter, respCache *cache.Cache, bridge *cookies.Bridge, notifier alert.Notifier) *Requester {
	return &Requester{
		cfg:     cfg,
		ctrl:    &rodControl{handle: handle, filter: filter},
		cache:   respCache,
		cookies: bridge,
		alerts:  notifier,
	}
}

// FetchProtected returns the rendered HTML of url, resolving bot-mitigation
// challenge pages along the way. Expected failures come back as sentinel
// strings with a nil error: a "Ray ID\n"-prefixed string after exhausted
// navigation retries, or "Ray ID: 504 Gateway Timeout" on timeout. A
// non-nil error means the browser itself was unusable.
//
// The cache is consulted before any navigation. Concurrent calls for the
// same URL share one navigation and one result.
func (r *Requester) FetchProtected(ctx context.Context, url string, opts *FetchOptions) (string, error) {
	if content, ok := r.cache.Lookup(url); ok {
		log.Debug().Str("url", url).Msg("Cache hit")
		return content, nil
	}

	ttl := r.cache.EffectiveTTL()
	if opts != nil && opts.CacheTTL > 0 {
		ttl = opts.CacheTTL
	}

	v, err, shared := r.flight.Do(url, func() (any, error) {
		// A concurrent fetch may have populated the cache while this call
		// waited on the flight key.
		if content, ok := r.cache.Lookup(url); ok {
			return content, nil
		}
		return r.fetch(ctx, url, ttl)
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug().Str("url", url).Msg("Fetch deduplicated across callers")
	}
	return v.(string), nil
}

// fetch runs the whole-operation retry loop: any loss of the browser
// connection tears the process down and starts over, with exponential
// backoff, up to the configured attempt bound.
func (r *Requester) fetch(ctx context.Context, url string, ttl time.Duration) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		content, err := r.fetchOnce(ctx, url, ttl)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, errConnectionLost) {
			return "", err
		}
		lastErr = err

		if attempt >= r.cfg.ReconnectAttempts {
			log.Error().
				Err(err).
				Str("url", url).
				Int("attempts", attempt).
				Msg("Browser unreachable, giving up")
			return "", types.NewBrowserUnreachableError(url, attempt, lastErr)
		}

		backoff := r.cfg.ReconnectBackoff << attempt
		log.Warn().
			Err(err).
			Str("url", url).
			Dur("backoff", backoff).
			Int("attempt", attempt+1).
			Msg("Browser connection lost, restarting")

		r.ctrl.Teardown()
		if !sleepWithContext(ctx, backoff) {
			return "", ctx.Err()
		}
	}
}

// fetchOnce performs a single tab-lifetime fetch: open tab, seed cookies,
// resolve the challenge, persist cookies, cache, close.
func (r *Requester) fetchOnce(ctx context.Context, url string, ttl time.Duration) (string, error) {
	tab, err := r.ctrl.NewTab(ctx)
	if err != nil {
		if isConnectionLost(err) {
			return "", wrapConnectionLost(err)
		}
		return "", err
	}
	defer func() {
		if err := tab.Close(); err != nil {
			log.Debug().Err(err).Msg("Tab close failed")
		}
	}()

	r.cookies.Load(ctx, tab, url)

	content, ok, err := r.resolve(ctx, tab, url)
	if err != nil {
		return "", err
	}
	if !ok {
		// Sentinel result: the fetch failed in an expected way. No cookies
		// worth keeping, nothing worth caching.
		return content, nil
	}

	r.cookies.Save(ctx, tab, url)
	r.cache.Store(url, content, ttl)
	return content, nil
}

// OpenTab opens a configured tab on the shared browser for callers that
// need direct page access, such as the screenshot utility. The caller owns
// the tab and must close it.
func (r *Requester) OpenTab(ctx context.Context) (Tab, error) {
	return r.ctrl.NewTab(ctx)
}

// ScreenshotElement captures a PNG of the first element matching selector
// on tab. A selector that matches nothing is a hard error.
func (r *Requester) ScreenshotElement(tab Tab, selector string) ([]byte, error) {
	return tab.Screenshot(selector)
}

// SetIgnoredURLs replaces the set of URLs exempt from response caching.
func (r *Requester) SetIgnoredURLs(urls []string) {
	r.cache.SetIgnoredURLs(urls)
}

// ClearCache drops all cached responses.
func (r *Requester) ClearCache() {
	r.cache.Clear()
}

// SetDefaultCacheTime changes the shared default cache time, affecting
// every requester bound to the same time configuration that has not set an
// instance override.
func (r *Requester) SetDefaultCacheTime(ttl time.Duration) {
	r.cache.TimeConfig().SetDefault(ttl)
}

// SetInstanceCacheTime sets this requester's cache time, shadowing the
// shared default.
func (r *Requester) SetInstanceCacheTime(ttl time.Duration) {
	r.cache.SetInstanceTTL(ttl)
}

// Close releases the cache sweeper and the browser in parallel.
func (r *Requester) Close() error {
	var g errgroup.Group
	g.Go(func() error {
		r.cache.Close()
		return nil
	})
	g.Go(r.ctrl.Close)
	return g.Wait()
}

// sleepWithContext sleeps for d or until ctx is canceled.
// Returns false when interrupted.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
