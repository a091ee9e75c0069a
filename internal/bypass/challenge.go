package bypass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Challenge page markers. Stage one is the interstitial shown while the
// browser is being fingerprinted; stage two asks for an explicit click.
const (
	stageOneMarker = "Just a moment..."
	stageTwoMarker = "Verify you are human"

	checkboxSelector = `input[type="checkbox"]`
)

// Sentinel result prefixes. These are returned as content, not errors, so
// callers branch on the string rather than on exceptions.
const (
	navFailedPrefix        = "Ray ID\n"
	gatewayTimeoutSentinel = "Ray ID: 504 Gateway Timeout"
)

// errConnectionLost marks navigation failures caused by the CDP connection
// dying. The retry loop in fetch restarts the browser on this error.
var errConnectionLost = errors.New("browser connection lost")

func wrapConnectionLost(err error) error {
	return fmt.Errorf("%w: %v", errConnectionLost, err)
}

// navErrKind classifies a navigation failure.
type navErrKind int

const (
	navErrPage       navErrKind = iota // page-level fault, retried in place
	navErrTimeout                      // deadline hit, not retried
	navErrConnection                   // CDP link died, whole-operation retry
)

// classifyNavErr buckets a navigation error by how the fetch should react.
func classifyNavErr(err error) navErrKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return navErrTimeout
	}
	if isConnectionLost(err) {
		return navErrConnection
	}
	return navErrPage
}

// isConnectionLost reports whether err looks like a dead browser link
// rather than a page fault.
func isConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, errConnectionLost) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "use of closed network connection")
}

// resolve navigates tab to url and walks the challenge stages. It returns
// (content, true, nil) on success, (sentinel, false, nil) on an expected
// failure, and a non-nil error only when the browser link is gone.
func (r *Requester) resolve(ctx context.Context, tab Tab, url string) (string, bool, error) {
	content, ok, err := r.navigate(ctx, tab, url)
	if err != nil || !ok {
		return content, false, err
	}

	content, err = r.passChallenge(ctx, tab, url, content)
	if err != nil {
		if isConnectionLost(err) {
			return "", false, wrapConnectionLost(err)
		}
		return "", false, err
	}
	return content, true, nil
}

// navigate drives the navigation retry loop. Page-level faults are retried
// up to the configured attempt count; on exhaustion the last error text is
// embedded in the navigation-failure sentinel. A timeout aborts immediately
// with the gateway-timeout sentinel and an operator alert.
func (r *Requester) navigate(ctx context.Context, tab Tab, url string) (string, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.NavAttempts; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
		err := tab.Navigate(navCtx, url)
		cancel()
		if err == nil {
			content, err := tab.Content()
			if err != nil {
				if isConnectionLost(err) {
					return "", false, wrapConnectionLost(err)
				}
				lastErr = err
				continue
			}
			return content, true, nil
		}

		switch classifyNavErr(err) {
		case navErrTimeout:
			log.Error().Str("url", url).Msg("Navigation timed out")
			if alertErr := r.alerts.Notify(ctx, fmt.Sprintf("Gateway timeout while fetching %s", url)); alertErr != nil {
				log.Warn().Err(alertErr).Msg("Failed to deliver timeout alert")
			}
			return gatewayTimeoutSentinel, false, nil

		case navErrConnection:
			return "", false, wrapConnectionLost(err)

		default:
			lastErr = err
			log.Warn().
				Err(err).
				Str("url", url).
				Int("attempt", attempt).
				Int("max_attempts", r.cfg.NavAttempts).
				Msg("Navigation failed")
		}
	}

	log.Error().Err(lastErr).Str("url", url).Msg("Navigation attempts exhausted")
	return navFailedPrefix + lastErr.Error(), false, nil
}

// passChallenge walks the challenge stages on an already-loaded page and
// returns the final content.
func (r *Requester) passChallenge(ctx context.Context, tab Tab, url, content string) (string, error) {
	if strings.Contains(content, stageOneMarker) {
		log.Info().
			Str("url", url).
			Dur("wait", r.cfg.ChallengeWait).
			Msg("Challenge interstitial detected, waiting")
		if !sleepWithContext(ctx, r.cfg.ChallengeWait) {
			return "", ctx.Err()
		}

		var err error
		content, err = tab.Content()
		if err != nil {
			return "", err
		}
	}

	if strings.Contains(content, stageTwoMarker) {
		log.Info().Str("url", url).Msg("Verification prompt detected, clicking checkbox")
		if err := tab.Click(checkboxSelector); err != nil {
			// The checkbox may render inside a frame we cannot reach; the
			// page sometimes clears on its own regardless.
			log.Warn().Err(err).Str("url", url).Msg("Verification checkbox not clickable")
		}

		var err error
		content, err = tab.Content()
		if err != nil {
			return "", err
		}
	}

	return content, nil
}

// IsSentinel reports whether content is one of the expected-failure
// sentinel strings rather than page content.
func IsSentinel(content string) bool {
	return strings.HasPrefix(content, navFailedPrefix) || content == gatewayTimeoutSentinel
}
