// Package engine runs the feed and page workflows over many items with bounded
// concurrency, then passes the records through the pipeline into storage.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/itemreviewed/internal/claimreview"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/domain"
	"github.com/IshaanNene/itemreviewed/internal/fetcher"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/pipeline"
	"github.com/IshaanNene/itemreviewed/internal/storage"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Stats tracks run statistics.
type Stats struct {
	Processed     atomic.Int64
	Built         atomic.Int64
	NoClaimReview atomic.Int64
	Failed        atomic.Int64
	Blocked       atomic.Int64
	Dropped       atomic.Int64
	Stored        atomic.Int64
	started       atomic.Int64
}

// Start marks the beginning of a run.
func (s *Stats) Start() {
	s.started.Store(time.Now().UnixNano())
}

// StartTime returns when the last run began.
func (s *Stats) StartTime() time.Time {
	return time.Unix(0, s.started.Load())
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"processed":       s.Processed.Load(),
		"built":           s.Built.Load(),
		"no_claim_review": s.NoClaimReview.Load(),
		"failed":          s.Failed.Load(),
		"blocked":         s.Blocked.Load(),
		"dropped":         s.Dropped.Load(),
		"stored":          s.Stored.Load(),
		"elapsed":         time.Since(s.StartTime()).String(),
	}
}

func newStats() *Stats {
	s := &Stats{}
	s.Start()
	return s
}

// Runner drives feed and page runs.
type Runner struct {
	cfg      *config.Config
	service  *claimreview.Service
	pipeline *pipeline.Pipeline
	pipeMu   sync.Mutex // one run uses the pipeline at a time
	storage  storage.Storage
	robots   *RobotsManager
	limiter  *Limiter
	metrics  *observability.Metrics
	stats    *Stats
	logger   *slog.Logger
}

// NewRunner creates a Runner. pipe and store may be nil to return records without
// filtering or persisting them.
func NewRunner(cfg *config.Config, service *claimreview.Service, pipe *pipeline.Pipeline, store storage.Storage, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		service:  service,
		pipeline: pipe,
		storage:  store,
		robots:   NewRobotsManager(cfg.Engine.RespectRobotsTxt, cfg.Fetcher.UserAgent, cfg.Fetcher.Timeout),
		limiter:  NewLimiter(cfg.Engine.RequestsPerSecond, cfg.Engine.Burst),
		stats:    newStats(),
		logger:   logger.With("component", "runner"),
	}
}

// SetMetrics attaches a metrics sink.
func (r *Runner) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Limiter returns the per-host limiter shared with the fetcher.
func (r *Runner) Limiter() *Limiter {
	return r.limiter
}

// Attach installs the runner's limiter on fetchers that accept one.
func (r *Runner) Attach(f fetcher.Fetcher) {
	if lf, ok := f.(interface{ SetLimiter(fetcher.Limiter) }); ok {
		lf.SetLimiter(r.limiter)
	}
}

// Stats returns the run statistics.
func (r *Runner) Stats() *Stats {
	return r.stats
}

// StatsSnapshot returns the current counters.
func (r *Runner) StatsSnapshot() map[string]any {
	return r.stats.Snapshot()
}

// RunFeed downloads the data feed and builds a record per eligible item.
// A feed that cannot be fetched fails the run; item-level problems do not.
func (r *Runner) RunFeed(ctx context.Context) ([]*types.ClaimReviewRecord, error) {
	r.stats.Start()
	r.logger.Info("feed run starting", "url", r.cfg.Feed.URL, "translate", r.cfg.Feed.Translate)

	items, err := r.service.FetchFeed(ctx, r.cfg.Feed.URL)
	if err != nil {
		return nil, err
	}

	results := make([]*types.ClaimReviewRecord, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r.metrics.InFlight(1)
			defer r.metrics.InFlight(-1)

			results[i] = r.service.BuildItem(gctx, item, r.cfg.Feed.Translate)
			r.stats.Processed.Add(1)
			r.stats.Built.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return r.finish(ctx, results)
}

// RunPages scrapes each fact-check page and builds a record from its ClaimReview.
// Results keep the order of urls; pages that fail or carry no claim review are skipped.
func (r *Runner) RunPages(ctx context.Context, urls []string) ([]*types.ClaimReviewRecord, error) {
	r.stats.Start()
	r.logger.Info("page run starting", "pages", len(urls), "concurrency", r.concurrency())

	opts := claimreview.PageOptions{
		LocateLinks: r.cfg.Scrape.LocateLinks,
		Translate:   r.cfg.Scrape.Translate,
		AllBlocks:   true,
	}

	results := make([]*types.ClaimReviewRecord, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())
	for i, pageURL := range urls {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r.metrics.InFlight(1)
			defer r.metrics.InFlight(-1)

			results[i] = r.processPage(gctx, pageURL, opts)
			r.stats.Processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return r.finish(ctx, results)
}

// processPage handles one page. Failures are logged and counted, never returned.
func (r *Runner) processPage(ctx context.Context, pageURL string, opts claimreview.PageOptions) *types.ClaimReviewRecord {
	allowed, delay := r.robots.Check(ctx, pageURL)
	if !allowed {
		r.stats.Blocked.Add(1)
		r.metrics.ItemFailed("robots")
		r.logger.Warn("page disallowed by robots.txt", "url", pageURL)
		return nil
	}
	if delay > 0 {
		r.limiter.SetHostDelay(domain.Host(pageURL), delay)
	}

	rec, err := r.service.ParsePage(ctx, pageURL, opts)
	if err != nil {
		r.stats.Failed.Add(1)
		r.metrics.ItemFailed("page")
		r.logger.Warn("page failed", "url", pageURL, "error", err)
		return nil
	}
	if rec == nil {
		r.stats.NoClaimReview.Add(1)
		r.logger.Info("no claim review on page", "url", pageURL)
		return nil
	}

	r.stats.Built.Add(1)
	return rec
}

// finish runs the pipeline and stores what survives.
func (r *Runner) finish(ctx context.Context, results []*types.ClaimReviewRecord) ([]*types.ClaimReviewRecord, error) {
	records := make([]*types.ClaimReviewRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			records = append(records, rec)
		}
	}

	if r.pipeline != nil {
		r.pipeMu.Lock()
		kept, errs := r.pipeline.ProcessAll(records)
		r.pipeMu.Unlock()
		for _, err := range errs {
			r.logger.Warn("pipeline rejected record", "error", err)
		}
		r.stats.Dropped.Add(int64(len(records) - len(kept)))
		records = kept
	}

	if r.storage != nil && len(records) > 0 {
		if err := r.storage.Store(records); err != nil {
			r.logger.Error("storage error", "backend", r.storage.Name(), "error", err, "records", len(records))
			return records, err
		}
		r.stats.Stored.Add(int64(len(records)))
		r.metrics.RecordsWritten(r.storage.Name(), len(records))
	}

	r.logger.Info("run complete", "stats", r.stats.Snapshot())
	return records, ctx.Err()
}

func (r *Runner) concurrency() int {
	if r.cfg.Engine.Concurrency < 1 {
		return 1
	}
	return r.cfg.Engine.Concurrency
}
