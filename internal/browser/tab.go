package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/types"
)

// Filter decides whether an outgoing request URL should be aborted
// before it leaves the browser.
type Filter interface {
	Blocked(url string) bool
}

// TabOptions overrides per-tab settings. Zero values fall back to config.
type TabOptions struct {
	Width  int
	Height int
}

// Tab is a configured page: stealth patches, user agent, viewport, extra
// headers and request filtering are all applied before first navigation.
type Tab struct {
	page    *rod.Page
	router  *rod.HijackRouter
	cleanup func()
}

// NewTab opens a new page on the browser with the full tab setup applied.
// Setup order matters: everything that shapes the first request (proxy auth,
// user agent, viewport, headers, stealth, hijack) runs before any navigation.
func (h *Handle) NewTab(ctx context.Context, filter Filter, opts TabOptions) (*Tab, error) {
	b, err := h.Browser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	t := &Tab{page: page, cleanup: func() {}}

	var proxy *ProxyAuth
	if h.cfg.HasProxy() && h.cfg.ProxyUsername != "" {
		proxy = &ProxyAuth{
			Username: h.cfg.ProxyUsername,
			Password: h.cfg.ProxyPassword,
		}
	}

	width, height := resolveViewport(h.cfg.ViewportWidth, h.cfg.ViewportHeight, opts)
	if err := t.configure(ctx, proxy, h.cfg.UserAgent, width, height, filter); err != nil {
		_ = page.Close()
		return nil, err
	}

	return t, nil
}

func resolveViewport(cfgW, cfgH int, opts TabOptions) (int, int) {
	w, h := cfgW, cfgH
	if opts.Width > 0 {
		w = opts.Width
	}
	if opts.Height > 0 {
		h = opts.Height
	}
	return w, h
}

func (t *Tab) configure(ctx context.Context, proxy *ProxyAuth, userAgent string, width, height int, filter Filter) error {
	if proxy != nil {
		cleanup, err := setupProxyAuth(ctx, t.page, proxy)
		if err != nil {
			return fmt.Errorf("failed to set up proxy auth: %w", err)
		}
		t.cleanup = cleanup
	}

	if userAgent != "" {
		err := proto.NetworkSetUserAgentOverride{
			UserAgent: userAgent,
		}.Call(t.page)
		if err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	if err := t.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	err := proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language": gson.New("en-US,en;q=0.9"),
			"Accept-Encoding": gson.New("gzip, deflate, br"),
			"Connection":      gson.New("keep-alive"),
		},
	}.Call(t.page)
	if err != nil {
		return fmt.Errorf("failed to set extra headers: %w", err)
	}

	if _, err := t.page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("failed to apply stealth patches: %w", err)
	}

	if filter != nil {
		t.router = t.page.HijackRequests()
		t.router.MustAdd("*", func(hctx *rod.Hijack) {
			reqURL := hctx.Request.URL().String()
			if filter.Blocked(reqURL) {
				log.Debug().Str("url", reqURL).Msg("Blocked request")
				hctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
				return
			}
			hctx.ContinueRequest(&proto.FetchContinueRequest{})
		})
		go t.router.Run()
	}

	return nil
}

// Navigate loads url and waits for the load event. A failed load-event wait
// is logged and ignored: challenge pages routinely keep the page busy.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	page := t.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Load event wait failed, continuing")
	}
	return nil
}

// Content returns the current HTML of the page.
func (t *Tab) Content() (string, error) {
	return t.page.HTML()
}

// SetCookies installs cookies on the tab before navigation.
func (t *Tab) SetCookies(cookies []types.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return t.page.SetCookies(params)
}

// Cookies returns all cookies visible to the tab.
func (t *Tab) Cookies() ([]types.Cookie, error) {
	raw, err := t.page.Cookies(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]types.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, types.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

// elementTimeout bounds element lookups; rod otherwise polls forever for
// selectors that never match.
const elementTimeout = 5 * time.Second

// Click clicks the first element matching selector.
// Returns ErrElementNotFound when no element matches.
func (t *Tab) Click(selector string) error {
	el, err := t.page.Timeout(elementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Screenshot captures a PNG of the first element matching selector.
// A missing element is a hard error, unlike Click callers which may treat
// absence as optional.
func (t *Tab) Screenshot(selector string) ([]byte, error) {
	el, err := t.page.Timeout(elementTimeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return data, nil
}

// Close stops the request router and closes the page.
func (t *Tab) Close() error {
	t.cleanup()
	if t.router != nil {
		if err := t.router.Stop(); err != nil {
			log.Debug().Err(err).Msg("Hijack router stop failed")
		}
	}
	return t.page.Close()
}
