package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// It is meant for fact-check pages that inject their JSON-LD with JavaScript.
type BrowserFetcher struct {
	browser   *rod.Browser
	cfg       config.BrowserConfig
	timeout   time.Duration
	userAgent string
	proxyMgr  *ProxyManager
	limiter   Limiter
	pagePool  chan *rod.Page
	logger    *slog.Logger
}

// NewBrowserFetcher launches a headless Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:       cfg.Fetcher.Browser,
		timeout:   cfg.Fetcher.Timeout,
		userAgent: cfg.Fetcher.UserAgent,
		logger:    logger.With("component", "browser_fetcher"),
	}
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		bf.proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}

	launchURL, err := bf.launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	poolSize := bf.cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	bf.pagePool = make(chan *rod.Page, poolSize)

	bf.logger.Info("browser fetcher ready", "pool_size", poolSize, "stealth", bf.cfg.Stealth)
	return bf, nil
}

// launch starts Chromium with flags that hide the automation banner.
func (bf *BrowserFetcher) launch() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if bf.cfg.WindowSize != "" {
		l = l.Set("window-size", bf.cfg.WindowSize)
	}
	if proxy := bf.proxyMgr.Next(); proxy != nil {
		l = l.Proxy(proxy.String())
	}
	return l.Launch()
}

// Fetch navigates to rawURL and returns the rendered HTML.
// Navigation failures are transport errors; the browser does not expose HTTP statuses.
func (bf *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	if err := config.ValidateURL(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindTerminal, Err: fmt.Errorf("%w: %v", types.ErrInvalidURL, err)}
	}
	start := time.Now()

	if bf.limiter != nil {
		if err := bf.limiter.Wait(ctx, rawURL); err != nil {
			return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Err: err}
		}
	}

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Attempts: 1, Err: err}
	}
	defer bf.putPage(page)

	p := page.Context(ctx)
	if bf.userAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: bf.userAgent}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if err := p.Timeout(bf.timeout).Navigate(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Attempts: 1, Err: err}
	}

	wait := bf.cfg.WaitStable
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	if err := p.Timeout(bf.timeout).WaitStable(wait); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Attempts: 1, Err: err}
	}

	finalURL := rawURL
	if info, err := p.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	resp := types.NewBrowserResponse(rawURL, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", rawURL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return resp, nil
}

// SetLimiter installs a limiter consulted before each navigation.
func (bf *BrowserFetcher) SetLimiter(l Limiter) { bf.limiter = l }

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage takes a pooled page or opens a new one, stealth-patched when configured.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}
	if bf.cfg.Stealth {
		page, err := stealth.Page(bf.browser)
		if err != nil {
			return nil, fmt.Errorf("stealth page: %w", err)
		}
		return page, nil
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage blanks a page and returns it to the pool, closing it if the pool is full.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
