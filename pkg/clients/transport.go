// Package clients holds shared HTTP client plumbing for talking to backend
// services.
package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport returns the capped transport used for backend dispatch.
// Connections per host are limited so a dead backend cannot pile up
// goroutines waiting on new connections.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
