package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/itemreviewed/internal/claimreview"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/engine"
	"github.com/IshaanNene/itemreviewed/internal/fetcher"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/pipeline"
	"github.com/IshaanNene/itemreviewed/internal/storage"
	"github.com/IshaanNene/itemreviewed/internal/translate"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

var (
	feedURL     string
	urlsFile    string
	htmlFile    string
	baseURL     string
	locateLinks bool
	noLinks     bool
)

// feedCmd creates the "feed" subcommand.
func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Build records from the ClaimReview data feed",
		Long:  "Download the aggregator data feed, keep items with a url and itemReviewed, and resolve the URLs each one reviews.",
		Args:  cobra.NoArgs,
		RunE:  runFeed,
	}

	cmd.Flags().StringVar(&feedURL, "url", "", "data feed URL (default from config)")
	cmd.Flags().BoolVarP(&translateOn, "translate", "t", false, "translate claims")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path, - for stdout")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: json, jsonl, csv, mongodb (comma-separated for several)")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "number of concurrent workers")

	return cmd
}

// pageCmd creates the "page" subcommand.
func pageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page [url...]",
		Short: "Build records from fact-check pages",
		Long: `Fetch each fact-check page, extract the first ClaimReview JSON-LD block and
resolve the URLs it reviews. Each reviewed URL is located in the article to
describe its rank, depth and surrounding text.

Use --html to parse a saved page instead of fetching it.`,
		RunE: runPage,
	}

	cmd.Flags().StringVarP(&urlsFile, "input", "i", "", "file with one page URL per line")
	cmd.Flags().StringVar(&htmlFile, "html", "", "parse a local HTML file instead of fetching")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "page URL of the --html file")
	cmd.Flags().BoolVar(&locateLinks, "links", false, "locate reviewed links in the page")
	cmd.Flags().BoolVar(&noLinks, "no-links", false, "skip link location")
	cmd.Flags().BoolVarP(&translateOn, "translate", "t", false, "translate claims")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http, browser")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path, - for stdout")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: json, jsonl, csv, mongodb (comma-separated for several)")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "number of concurrent workers")

	return cmd
}

// app holds the wired components for one run.
type app struct {
	cfg      *config.Config
	fetcher  fetcher.Fetcher
	service  *claimreview.Service
	pipeline *pipeline.Pipeline
	storage  storage.Storage
	runner   *engine.Runner
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// newApp wires fetcher, translator, builder, pipeline, storage and runner.
func newApp(cfg *config.Config, logger *slog.Logger, withTranslation bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics(logger)
		if err := a.metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	a.fetcher = f
	if hf, ok := f.(*fetcher.HTTPFetcher); ok {
		hf.SetMetrics(a.metrics)
	}

	var translator claimreview.Translator
	if withTranslation {
		tr, err := translate.NewFromConfig(cfg, logger)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create translator: %w", err)
		}
		tr.SetMetrics(a.metrics)
		translator = tr
		logger.Info("translation enabled", "providers", tr.Providers(), "target", cfg.Translate.TargetLanguage)
	}

	matcher := claimreview.NewMatcher(cfg.Scrape.ItemReviewedPaths, nil)
	builder := claimreview.NewBuilder(matcher, translator, logger)
	a.service = claimreview.NewService(f, builder, logger)
	a.service.SetMetrics(a.metrics)

	a.pipeline = pipeline.NewFromConfig(cfg.Pipeline, logger)
	a.pipeline.SetMetrics(a.metrics)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create storage: %w", err)
	}
	a.storage = store

	a.runner = engine.NewRunner(cfg, a.service, a.pipeline, store, logger)
	a.runner.SetMetrics(a.metrics)
	a.runner.Attach(f)

	return a, nil
}

// close flushes storage and releases the fetcher and metrics server.
func (a *app) close() error {
	var errs []error
	if err := a.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := a.fetcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close fetcher: %w", err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics: %w", err))
	}
	return errors.Join(errs...)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// runFeed executes the feed command.
func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if feedURL != "" {
		if err := config.ValidateURL(feedURL); err != nil {
			return fmt.Errorf("invalid feed URL %q: %w", feedURL, err)
		}
		cfg.Feed.URL = feedURL
	}
	if translateOn {
		cfg.Feed.Translate = true
	}
	logger := setupLogger(cfg.Logging)

	a, err := newApp(cfg, logger, cfg.Feed.Translate)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	start := time.Now()
	records, runErr := a.runner.RunFeed(ctx)
	closeErr := a.close()
	if runErr != nil {
		return fmt.Errorf("feed run: %w", runErr)
	}
	if closeErr != nil {
		return closeErr
	}

	printSummary(a, len(records), time.Since(start))
	return nil
}

// runPage executes the page command.
func runPage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if translateOn {
		cfg.Scrape.Translate = true
	}
	if locateLinks {
		cfg.Scrape.LocateLinks = true
	}
	if noLinks {
		cfg.Scrape.LocateLinks = false
	}
	logger := setupLogger(cfg.Logging)

	if htmlFile != "" {
		return runLocalPage(cfg, logger)
	}

	urls := append([]string(nil), args...)
	if urlsFile != "" {
		fromFile, err := readURLs(urlsFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return errors.New("no page URLs given: pass them as arguments or with --input")
	}
	for _, rawURL := range urls {
		if err := config.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("invalid URL %q: %w", rawURL, err)
		}
	}

	a, err := newApp(cfg, logger, cfg.Scrape.Translate)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	start := time.Now()
	records, runErr := a.runner.RunPages(ctx, urls)
	closeErr := a.close()
	if runErr != nil {
		return fmt.Errorf("page run: %w", runErr)
	}
	if closeErr != nil {
		return closeErr
	}

	printSummary(a, len(records), time.Since(start))
	return nil
}

// runLocalPage parses a saved HTML file as if it had been fetched from --base-url.
func runLocalPage(cfg *config.Config, logger *slog.Logger) error {
	if baseURL == "" {
		return errors.New("--base-url is required with --html")
	}
	if err := config.ValidateURL(baseURL); err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	body, err := os.ReadFile(htmlFile)
	if err != nil {
		return fmt.Errorf("read html: %w", err)
	}

	a, err := newApp(cfg, logger, cfg.Scrape.Translate)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	resp := types.NewBrowserResponse(baseURL, 200, body, baseURL, 0)
	rec, err := a.service.ParseResponse(ctx, resp, claimreview.PageOptions{
		LocateLinks: cfg.Scrape.LocateLinks,
		Translate:   cfg.Scrape.Translate,
		AllBlocks:   true,
	})
	if err != nil {
		_ = a.close()
		return fmt.Errorf("parse %s: %w", htmlFile, err)
	}
	if rec == nil {
		_ = a.close()
		return fmt.Errorf("%s: %w", htmlFile, types.ErrNoClaimReview)
	}

	kept, errs := a.pipeline.ProcessAll([]*types.ClaimReviewRecord{rec})
	for _, perr := range errs {
		logger.Warn("pipeline rejected record", "error", perr)
	}
	if len(kept) > 0 {
		if err := a.storage.Store(kept); err != nil {
			_ = a.close()
			return err
		}
	}
	return a.close()
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}

func printSummary(a *app, written int, elapsed time.Duration) {
	stats := a.runner.Stats().Snapshot()
	a.logger.Info("run summary", "elapsed", elapsed, "records", written)

	fmt.Fprintf(os.Stderr, "\nDone in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "   Processed: %v (built %v, no claim review %v, failed %v, blocked %v)\n",
		stats["processed"], stats["built"], stats["no_claim_review"], stats["failed"], stats["blocked"])
	fmt.Fprintf(os.Stderr, "   Records:   %v stored, %v dropped\n", stats["stored"], stats["dropped"])
	fmt.Fprintf(os.Stderr, "   Output:    %s (%s)\n", a.cfg.Storage.OutputPath, a.storage.Name())
}
