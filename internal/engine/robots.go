package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsManager fetches, caches and enforces robots.txt per scheme and host.
// Hosts whose robots.txt cannot be fetched are allowed.
type RobotsManager struct {
	enabled   bool
	userAgent string
	cache     map[string]*robotstxt.RobotsData
	mu        sync.RWMutex
	client    *http.Client
}

// NewRobotsManager creates a new RobotsManager. The user agent is reduced to its
// product token for group matching.
func NewRobotsManager(enabled bool, userAgent string, timeout time.Duration) *RobotsManager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsManager{
		enabled:   enabled,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Check reports whether rawURL may be fetched and the crawl delay its host asks for.
func (rm *RobotsManager) Check(ctx context.Context, rawURL string) (bool, time.Duration) {
	if !rm.enabled {
		return true, 0
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true, 0
	}

	data := rm.getRobotsData(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true, 0
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	agent := productToken(rm.userAgent)
	var delay time.Duration
	if group := data.FindGroup(agent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, agent), delay
}

// IsAllowed reports whether rawURL may be fetched.
func (rm *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	allowed, _ := rm.Check(ctx, rawURL)
	return allowed
}

// getRobotsData fetches and caches robots.txt for an origin.
func (rm *RobotsManager) getRobotsData(ctx context.Context, origin string) *robotstxt.RobotsData {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()

	if ok {
		return data
	}

	data, err := rm.fetchRobotsTxt(ctx, origin)
	if err != nil {
		// Transient failures are not cached so the next page retries.
		return nil
	}

	rm.mu.Lock()
	rm.cache[origin] = data
	rm.mu.Unlock()

	return data
}

// fetchRobotsTxt downloads and parses robots.txt. The status code decides the
// defaults: 4xx allows everything, 5xx disallows everything.
func (rm *RobotsManager) fetchRobotsTxt(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	if rm.userAgent != "" {
		req.Header.Set("User-Agent", rm.userAgent)
	}

	resp, err := rm.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}

	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

// productToken returns the first product name of a user agent, e.g. "Mozilla".
func productToken(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return "*"
	}
	return strings.Split(parts[0], "/")[0]
}
