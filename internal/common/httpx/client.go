// Package httpx provides shared HTTP client construction so every component
// talking to providers uses the same transport settings.
package httpx

import (
	"net/http"
	"time"
)

// DefaultTimeout is used when a component does not configure its own.
const DefaultTimeout = 30 * time.Second

// NewClient creates an HTTP client with connection pooling and the given
// overall request timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
