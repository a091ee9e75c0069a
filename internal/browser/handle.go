// Package browser manages the shared Chrome instance and the tabs opened on
// it. The browser is launched lazily on first use and recycled by the caller
// when its CDP connection is lost.
package browser

import (
	"context"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/config"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

// Handle owns the lifecycle of a single browser process.
// Concurrent callers racing to start the browser are collapsed into one
// launch; everyone receives the same instance or the same launch error.
type Handle struct {
	cfg *config.Config

	mu      sync.Mutex
	browser *rod.Browser

	launch singleflight.Group
}

// NewHandle creates a handle. The browser process is not started until the
// first call to Browser.
func NewHandle(cfg *config.Config) *Handle {
	return &Handle{cfg: cfg}
}

// Browser returns the running browser, launching it if needed.
// Launch failures are not cached: the next call tries again.
func (h *Handle) Browser(ctx context.Context) (*rod.Browser, error) {
	h.mu.Lock()
	b := h.browser
	h.mu.Unlock()
	if b != nil {
		return b, nil
	}

	v, err, shared := h.launch.Do("launch", func() (any, error) {
		// Re-check under the key: a previous winner may have stored the
		// browser between our miss and this call.
		h.mu.Lock()
		b := h.browser
		h.mu.Unlock()
		if b != nil {
			return b, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		b, err := h.spawn()
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		h.browser = b
		h.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Msg("Browser launch deduplicated across callers")
	}
	return v.(*rod.Browser), nil
}

// spawn launches a fresh browser process and connects to it over CDP.
func (h *Handle) spawn() (*rod.Browser, error) {
	log.Info().
		Bool("headless", h.cfg.Headless).
		Str("user_data_dir", h.cfg.UserDataDir).
		Msg("Launching browser")

	// Launchers are single-use, so build a fresh one per spawn.
	controlURL, err := h.createLauncher().Launch()
	if err != nil {
		return nil, types.NewLaunchError(err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, types.NewLaunchError(err)
	}

	log.Debug().Str("control_url", controlURL).Msg("Browser connected")
	return b, nil
}

// createLauncher builds the Chrome launcher. The user data directory keeps
// profile state (cookies, local storage) across browser restarts.
func (h *Handle) createLauncher() *launcher.Launcher {
	l := launcher.New()

	if h.cfg.BrowserPath != "" {
		l = l.Bin(h.cfg.BrowserPath)
	}

	if h.cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default; disable it explicitly when a
		// display is available.
		l = l.Headless(false)
	}

	if h.cfg.NoSandbox {
		l = l.Set("no-sandbox").
			Set("disable-setuid-sandbox")
	}
	l = l.Set("disable-dev-shm-usage")

	l = l.Set("user-data-dir", h.cfg.UserDataDir)

	// Prevent navigator.webdriver and the automation infobar.
	l = l.Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	l = l.Set("accept-lang", "en-US,en;q=0.9").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("mute-audio")

	if h.cfg.HasProxy() {
		l = l.Set("proxy-server", proxyServerArg(h.cfg.ProxyURL))
		log.Debug().Str("proxy", redactProxyURL(h.cfg.ProxyURL)).Msg("Browser proxy configured")
	}

	return l
}

// Teardown closes and discards the current browser so the next call to
// Browser launches a fresh process. Used when the CDP connection is lost.
func (h *Handle) Teardown() {
	h.mu.Lock()
	b := h.browser
	h.browser = nil
	h.mu.Unlock()

	if b == nil {
		return
	}

	log.Warn().Msg("Tearing down browser instance")
	if err := b.Close(); err != nil {
		// Expected when the process already died; the point is to discard it.
		log.Debug().Err(err).Msg("Browser close during teardown failed")
	}
}

// Close shuts down the browser if it is running.
func (h *Handle) Close() error {
	h.mu.Lock()
	b := h.browser
	h.browser = nil
	h.mu.Unlock()

	if b == nil {
		return nil
	}

	log.Info().Msg("Closing browser")
	return b.Close()
}

// proxyServerArg strips credentials from a proxy URL for the --proxy-server
// flag. Chrome rejects userinfo in the flag; auth is handled per-tab via CDP.
func proxyServerArg(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Scheme != "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Host
}

// redactProxyURL masks credentials embedded in a proxy URL for logging.
func redactProxyURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
