package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CacheHeaderAdder wraps an http.Handler and adds Cache-Control headers.
// rungs uses it for the stylesheet and for the game and ladder APIs, which
// change only when an admin imports a ladder.
type CacheHeaderAdder struct {
	maybe  func(r *http.Request) bool
	next   http.Handler
	header string
}

// CacheHeaderAdderConfig configures the caching behavior.
type CacheHeaderAdderConfig struct {
	// Add cache headers, but only if this returns true.
	Maybe func(r *http.Request) bool

	Next http.Handler

	// MaxAge is how long the content should be cached.
	MaxAge time.Duration

	// Immutable indicates that the content will never change.
	Immutable bool

	// CachePrivate keeps shared caches (CDNs, proxies) out of it.
	CachePrivate bool

	// Disabled turns the headers off entirely, for working on the assets.
	Disabled bool
}

// CacheControl renders the header value for the given settings.
func (c *CacheHeaderAdderConfig) CacheControl() string {
	parts := []string{"public"}
	if c.CachePrivate {
		parts[0] = "private"
	}
	if secs := int(c.MaxAge.Seconds()); secs > 0 {
		parts = append(parts, fmt.Sprintf("max-age=%d", secs))
	}
	if c.Immutable {
		parts = append(parts, "immutable")
	}
	return strings.Join(parts, ", ")
}

// NewCacheHeaderAdder creates a new caching middleware.
func NewCacheHeaderAdder(config *CacheHeaderAdderConfig) http.Handler {
	if config.Disabled {
		return config.Next
	}
	return &CacheHeaderAdder{
		maybe:  config.Maybe,
		next:   config.Next,
		header: config.CacheControl(),
	}
}

func (ch *CacheHeaderAdder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ch.maybe == nil || ch.maybe(r) {
		w.Header().Set("Cache-Control", ch.header)
	}
	ch.next.ServeHTTP(w, r)
}
