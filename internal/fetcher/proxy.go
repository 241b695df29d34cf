package fetcher

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/IshaanNene/itemreviewed/internal/config"
)

// ProxyManager rotates requests across configured proxies and benches failing ones.
// A nil *ProxyManager means direct connections.
type ProxyManager struct {
	mu       sync.RWMutex
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	logger   *slog.Logger
}

type proxyEntry struct {
	url     *url.URL
	healthy bool
	lastErr error
}

// NewProxyManager creates a ProxyManager from configuration. Invalid URLs are skipped.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{url: u, healthy: true})
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// Next returns the next healthy proxy, or nil when none is available.
func (pm *ProxyManager) Next() *url.URL {
	if pm == nil {
		return nil
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if p.healthy {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return nil
	}

	if pm.rotation == "random" {
		return healthy[rand.Intn(len(healthy))].url
	}
	idx := (pm.index.Add(1) - 1) % int64(len(healthy))
	return healthy[idx].url
}

// MarkFailed benches a proxy after a transport failure. When every proxy is benched
// they are all restored so a transient outage does not disable proxying for good.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	if pm == nil || proxyURL == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	anyHealthy := false
	for _, p := range pm.proxies {
		if p.url.String() == proxyURL.String() {
			p.healthy = false
			p.lastErr = err
			pm.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
		}
		anyHealthy = anyHealthy || p.healthy
	}
	if !anyHealthy {
		for _, p := range pm.proxies {
			p.healthy = true
		}
		pm.logger.Warn("all proxies failed, restoring pool")
	}
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	if pm == nil {
		return 0
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	if pm == nil {
		return 0
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	n := 0
	for _, p := range pm.proxies {
		if p.healthy {
			n++
		}
	}
	return n
}

type proxyKey struct{}

func withProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, proxyKey{}, u)
}

// proxyFromContext is the transport's Proxy func: it uses the proxy chosen for the request.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}
