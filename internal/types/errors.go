// Package types provides shared types and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser lifecycle errors
	ErrBrowserLaunch      = errors.New("browser failed to launch")
	ErrBrowserClosed      = errors.New("browser handle is closed")
	ErrBrowserUnreachable = errors.New("browser process is unreachable")

	// Fetch errors
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrNavigationTimeout = errors.New("navigation timed out")

	// Page errors
	ErrElementNotFound = errors.New("element not found on page")

	// Cookie store errors
	ErrCookiesNotFound = errors.New("no cookies stored for site")
)

// FetchError provides detailed information about bypass fetch failures.
// It implements the error interface and supports error unwrapping.
type FetchError struct {
	URL      string // The URL where the error occurred
	Attempts int    // How many attempts were made before giving up
	Message  string // Human-readable error message
	Err      error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewBrowserUnreachableError creates an error for exhausted reconnect attempts.
func NewBrowserUnreachableError(url string, attempts int, err error) *FetchError {
	return &FetchError{
		URL:      url,
		Attempts: attempts,
		Message:  "browser unreachable after repeated relaunch attempts",
		Err:      errors.Join(ErrBrowserUnreachable, err),
	}
}

// NewLaunchError creates an error for browser launch failures.
// A launch failure is fatal to the calling fetch and always propagates.
func NewLaunchError(err error) *FetchError {
	return &FetchError{
		Message: "failed to launch browser: " + err.Error(),
		Err:     errors.Join(ErrBrowserLaunch, err),
	}
}
