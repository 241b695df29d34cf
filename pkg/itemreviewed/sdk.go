// Package itemreviewed provides a public SDK for embedding the ClaimReview
// extractor as a library.
//
// Example usage:
//
//	client, err := itemreviewed.NewClient(
//	    itemreviewed.WithConcurrency(8),
//	    itemreviewed.WithTranslation("google"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rec, err := client.ParsePage(ctx, "https://factcheck.example/checks/moon")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(rec.ItemsReviewed)
package itemreviewed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/itemreviewed/internal/claimreview"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/engine"
	"github.com/IshaanNene/itemreviewed/internal/fetcher"
	"github.com/IshaanNene/itemreviewed/internal/pipeline"
	"github.com/IshaanNene/itemreviewed/internal/translate"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Record is a normalized fact-check record.
type Record = types.ClaimReviewRecord

// LinkContext describes where a reviewed URL sits on its fact-check page.
type LinkContext = types.LinkContext

// Client is the high-level API for using itemreviewed as a library.
type Client struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	service *claimreview.Service
	matcher *claimreview.Matcher
	runner  *engine.Runner
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*config.Config)

// WithConcurrency sets the number of pages or feed items processed at once.
func WithConcurrency(n int) Option {
	return func(c *config.Config) { c.Engine.Concurrency = n }
}

// WithRateLimit sets the per-host request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config.Config) {
		c.Engine.RequestsPerSecond = rps
		c.Engine.Burst = burst
	}
}

// WithTimeout sets the per-request fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config.Config) { c.Fetcher.Timeout = d }
}

// WithMaxRetries sets the number of fetch attempts for retryable statuses.
func WithMaxRetries(n int) Option {
	return func(c *config.Config) { c.Fetcher.MaxRetries = n }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Fetcher.UserAgent = ua }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(c *config.Config) {
		c.Proxy.Enabled = true
		c.Proxy.URLs = urls
	}
}

// WithBrowser renders pages in headless Chromium before extraction.
func WithBrowser() Option {
	return func(c *config.Config) { c.Fetcher.Type = "browser" }
}

// WithRobotsRespect enables/disables robots.txt compliance.
func WithRobotsRespect(respect bool) Option {
	return func(c *config.Config) { c.Engine.RespectRobotsTxt = respect }
}

// WithFeedURL overrides the data feed used by ParseFeed.
func WithFeedURL(feedURL string) Option {
	return func(c *config.Config) { c.Feed.URL = feedURL }
}

// WithLinks toggles locating reviewed links on scraped pages.
func WithLinks(locate bool) Option {
	return func(c *config.Config) { c.Scrape.LocateLinks = locate }
}

// WithItemReviewedPaths replaces the itemReviewed path patterns.
func WithItemReviewedPaths(paths ...string) Option {
	return func(c *config.Config) { c.Scrape.ItemReviewedPaths = paths }
}

// WithTranslation translates claims using the named providers in order.
func WithTranslation(providers ...string) Option {
	return func(c *config.Config) {
		if len(providers) > 0 {
			c.Translate.Providers = providers
		}
		c.Feed.Translate = true
		c.Scrape.Translate = true
	}
}

// WithExcludedHosts drops reviewed URLs on the given hosts and their subdomains.
func WithExcludedHosts(hosts ...string) Option {
	return func(c *config.Config) { c.Pipeline.ExcludeHosts = hosts }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	level := slog.LevelWarn
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	var translator claimreview.Translator
	if cfg.Scrape.Translate {
		tr, err := translate.NewFromConfig(cfg, logger)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create translator: %w", err)
		}
		translator = tr
	}

	matcher := claimreview.NewMatcher(cfg.Scrape.ItemReviewedPaths, nil)
	service := claimreview.NewService(f, claimreview.NewBuilder(matcher, translator, logger), logger)

	runner := engine.NewRunner(cfg, service, pipeline.NewFromConfig(cfg.Pipeline, logger), nil, logger)
	runner.Attach(f)

	return &Client{
		cfg:     cfg,
		fetcher: f,
		service: service,
		matcher: matcher,
		runner:  runner,
		logger:  logger,
	}, nil
}

// ParsePage scrapes one fact-check page. It returns types.ErrNoClaimReview when
// the page carries no ClaimReview markup. The record is not filtered, so
// ItemsReviewed may be nil.
func (c *Client) ParsePage(ctx context.Context, pageURL string) (*Record, error) {
	rec, err := c.service.ParsePage(ctx, pageURL, claimreview.PageOptions{
		LocateLinks: c.cfg.Scrape.LocateLinks,
		Translate:   c.cfg.Scrape.Translate,
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, types.ErrNoClaimReview
	}
	return rec, nil
}

// ParsePages scrapes pages concurrently and returns the records that resolved
// at least one reviewed URL, in input order.
func (c *Client) ParsePages(ctx context.Context, urls ...string) ([]*Record, error) {
	return c.runner.RunPages(ctx, urls)
}

// ParseFeed downloads the data feed and returns records with resolved URLs.
func (c *Client) ParseFeed(ctx context.Context) ([]*Record, error) {
	return c.runner.RunFeed(ctx)
}

// ResolveItems returns the external URLs an itemReviewed value points at.
func (c *Client) ResolveItems(itemReviewed any, factcheckURL string) []string {
	return c.matcher.Resolve(itemReviewed, factcheckURL)
}

// Stats returns counters accumulated across runs.
func (c *Client) Stats() map[string]any {
	return c.runner.StatsSnapshot()
}

// Close releases the underlying fetcher.
func (c *Client) Close() error {
	return c.fetcher.Close()
}
