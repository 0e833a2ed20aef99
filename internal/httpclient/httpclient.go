// Package httpclient provides the HTTP clients shared by every
// component that talks to a renderer or the outside world: SOAP
// actions, device-description fetches and the overlay-sync callback.
// Centralizing client construction here means every caller gets the
// same bounded timeouts instead of hand-rolling its own.
package httpclient

import (
	"net/http"
	"time"
)

// Default returns an HTTP client with a 10s overall timeout, matching
// spec.md §5's "SOAP action: 10s per attempt". Used for SOAP POSTs;
// callers that need a different timeout, like the 5s description fetch
// or 2s overlay callback, use WithTimeout.
func Default() *http.Client {
	return WithTimeout(10 * time.Second)
}

// WithTimeout returns a client with the given overall request timeout
// and the same conservative transport settings as Default.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

// ForStreaming returns a client with no overall timeout, for long-lived
// GET transfers that may run for the length of a video. No package in
// this module calls it; the streaming server serves local files
// directly and does not proxy.
func ForStreaming() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
