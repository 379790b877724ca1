package scraper

import (
	"errors"
	"fmt"
)

// Typed fetch-failure categories shared by the supplier collector and the
// Amazon client. ErrorsByType and the sourcing_errors_total metric key off
// the category; Unwrap keeps the transport error available for logs.

// ErrTimeout wraps a fetch that exceeded the configured deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("timeout: %v", e.Err)
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection wraps a network-level failure before any response arrived.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Sprintf("connection: %v", e.Err)
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden wraps an HTTP 403, usually the supplier gating a category
// behind a trade login.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %v", e.Err)
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound wraps an HTTP 404, typically a delisted product or a stale
// category URL.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("not_found: %v", e.Err)
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited wraps an HTTP 429; the retry schedule backs off before the
// next attempt.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limited: %v", e.Err)
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrBlocked wraps an HTTP 503, which Amazon serves for its robot-check
// interstitial; suppliers use it for genuine outages. Either way the page
// body is not product data.
type ErrBlocked struct {
	Err error
}

func (e ErrBlocked) Error() string {
	return fmt.Sprintf("blocked: %v", e.Err)
}

func (e ErrBlocked) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var blocked ErrBlocked
	if errors.As(err, &blocked) {
		return "blocked"
	}
	return "other"
}
