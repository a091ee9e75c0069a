package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// ProxyAuth holds credentials for an authenticated upstream proxy.
// The proxy server itself is set at browser launch; this only answers
// auth challenges over CDP.
type ProxyAuth struct {
	Username string
	Password string
}

// setupProxyAuth intercepts proxy auth challenges on a page and answers them
// with the configured credentials. The returned cleanup function stops the
// event listeners and must be called when the page is closed.
func setupProxyAuth(ctx context.Context, page *rod.Page, proxy *ProxyAuth) (cleanup func(), err error) {
	if proxy == nil || proxy.Username == "" {
		return func() {}, nil
	}

	log.Debug().Msg("Setting up proxy authentication")

	// Enable fetch domain to intercept auth challenges
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Failed to enable fetch for proxy auth")
		return func() {}, err
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageWithCtx := page.Context(listenerCtx)

	go func() {
		pageWithCtx.EachEvent(func(e *proto.FetchAuthRequired) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			log.Debug().Msg("Proxy authentication required, providing credentials")

			_ = proto.FetchContinueWithAuth{
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				},
			}.Call(page)
			return false
		})()
	}()

	// Requests paused by the fetch domain that are not auth challenges still
	// need to be continued, or the page stalls.
	go func() {
		pageWithCtx.EachEvent(func(e *proto.FetchRequestPaused) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}
			if e.ResponseStatusCode == nil {
				_ = proto.FetchContinueRequest{
					RequestID: e.RequestID,
				}.Call(page)
			}
			return false
		})()
	}()

	return cancel, nil
}
