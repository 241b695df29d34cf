// Package domain provides the eTLD+1 and URL normalization helpers used to decide
// whether two URLs belong to the same site.
package domain

import (
	"net"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/net/publicsuffix"
)

// Resolver computes eTLD+1 values and memoizes them per host.
type Resolver struct {
	cache *gocache.Cache
}

// NewResolver creates a Resolver whose memo entries expire after ttl.
// A zero ttl keeps entries for the life of the process.
func NewResolver(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Resolver{cache: gocache.New(ttl, 10*time.Minute)}
}

var defaultResolver = NewResolver(0)

// ETLD1 returns the registrable domain of rawURL using the shared resolver.
func ETLD1(rawURL string) (string, bool) {
	return defaultResolver.ETLD1(rawURL)
}

// SameSite reports whether both URLs resolve to the same eTLD+1.
// Unresolvable URLs are never the same site.
func SameSite(a, b string) bool {
	da, ok := ETLD1(a)
	if !ok {
		return false
	}
	db, ok := ETLD1(b)
	return ok && da == db
}

// ETLD1 returns the registrable domain (eTLD+1) of rawURL.
// It returns false for malformed or relative URLs.
func (r *Resolver) ETLD1(rawURL string) (string, bool) {
	host := Host(rawURL)
	if host == "" {
		return "", false
	}
	if v, found := r.cache.Get(host); found {
		return v.(string), true
	}
	d := etld1ForHost(host)
	r.cache.SetDefault(host, d)
	return d, true
}

// Host returns the lowercased host of an absolute URL, or "" if there is none.
func Host(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func etld1ForHost(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Bare suffixes and single-label hosts are their own site.
		return host
	}
	return d
}

// IsHTTPURL reports whether rawURL is an absolute http(s) URL with a host.
func IsHTTPURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
