// Package cookies persists browser cookies per site so challenge clearance
// survives restarts. Sites are identified by registrable domain, so cookies
// set on a subdomain are replayed for the whole site.
package cookies

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

// Store is the persistence backend for per-site cookie jars.
type Store interface {
	// GetCookies returns the stored cookies for site.
	// Returns types.ErrCookiesNotFound when no jar exists for the site.
	GetCookies(ctx context.Context, site string) ([]types.Cookie, error)
	// SetCookies replaces the stored jar for site.
	SetCookies(ctx context.Context, site string, cookies []types.Cookie) error
}

// SiteIdentity reduces a URL to its registrable domain (eTLD+1), the key
// under which its cookies are stored. An IP or unlisted host falls back to
// the hostname itself.
func SiteIdentity(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("URL has no host: %s", rawURL)
	}

	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.ToLower(host), nil
	}
	return strings.ToLower(site), nil
}

// Bridge moves cookies between the store and browser tabs.
// Exempt sites are never loaded or saved. Persistence failures are logged
// and swallowed: a fetch must not fail because the cookie jar did.
type Bridge struct {
	store  Store
	exempt map[string]struct{}
}

// NewBridge creates a bridge over store. exemptSites lists sites (registrable
// domains) excluded from cookie persistence.
func NewBridge(store Store, exemptSites []string) *Bridge {
	exempt := make(map[string]struct{}, len(exemptSites))
	for _, s := range exemptSites {
		exempt[strings.ToLower(s)] = struct{}{}
	}
	return &Bridge{store: store, exempt: exempt}
}

// Exempt reports whether site is excluded from cookie persistence.
func (b *Bridge) Exempt(site string) bool {
	_, ok := b.exempt[strings.ToLower(site)]
	return ok
}

// Load seeds tab with the stored cookies for the site of rawURL.
// Missing jars, exempt sites and store errors all result in an unseeded tab.
func (b *Bridge) Load(ctx context.Context, tab CookieSetter, rawURL string) {
	site, err := SiteIdentity(rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Cannot derive site for cookie load")
		return
	}
	if b.Exempt(site) {
		log.Debug().Str("site", site).Msg("Site is cookie-exempt, skipping load")
		return
	}

	cookies, err := b.store.GetCookies(ctx, site)
	if err != nil {
		if errors.Is(err, types.ErrCookiesNotFound) {
			log.Debug().Str("site", site).Msg("No stored cookies for site")
		} else {
			log.Warn().Err(err).Str("site", site).Msg("Cookie load failed, continuing without")
		}
		return
	}

	if err := tab.SetCookies(cookies); err != nil {
		log.Warn().Err(err).Str("site", site).Msg("Failed to seed cookies into tab")
		return
	}
	log.Debug().Str("site", site).Int("count", len(cookies)).Msg("Seeded cookies into tab")
}

// Save persists the tab's current cookies under the site of rawURL.
func (b *Bridge) Save(ctx context.Context, tab CookieGetter, rawURL string) {
	site, err := SiteIdentity(rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("Cannot derive site for cookie save")
		return
	}
	if b.Exempt(site) {
		log.Debug().Str("site", site).Msg("Site is cookie-exempt, skipping save")
		return
	}

	cookies, err := tab.Cookies()
	if err != nil {
		log.Warn().Err(err).Str("site", site).Msg("Failed to read cookies from tab")
		return
	}
	if len(cookies) == 0 {
		log.Debug().Str("site", site).Msg("Tab has no cookies to persist")
		return
	}

	if err := b.store.SetCookies(ctx, site, cookies); err != nil {
		log.Warn().Err(err).Str("site", site).Msg("Cookie save failed, continuing")
		return
	}
	log.Debug().Str("site", site).Int("count", len(cookies)).Msg("Persisted cookies")
}

// CookieSetter installs cookies on a browser tab.
type CookieSetter interface {
	SetCookies([]types.Cookie) error
}

// CookieGetter reads cookies back from a browser tab.
type CookieGetter interface {
	Cookies() ([]types.Cookie, error)
}
