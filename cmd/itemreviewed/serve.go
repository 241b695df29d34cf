package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/itemreviewed/internal/api"
	"github.com/IshaanNene/itemreviewed/internal/claimreview"
)

var apiPort int

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction API over HTTP",
		Long: `Start an HTTP API for on-demand extraction:

  POST /api/pages    scrape one fact-check page
  POST /api/items    build records from ClaimReview objects
  POST /api/resolve  resolve an itemReviewed value
  POST /api/jobs     queue a batch of pages (stored like a page run)
  GET  /api/jobs     list jobs, GET /api/jobs/{id} for one job
  GET  /api/stats    batch counters`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVarP(&apiPort, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().BoolVarP(&translateOn, "translate", "t", false, "enable claim translation")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http, browser")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path for batch jobs")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format for batch jobs")

	return cmd
}

// runServe executes the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
	logger := setupLogger(cfg.Logging)

	withTranslation := translateOn || cfg.Scrape.Translate
	a, err := newApp(cfg, logger, withTranslation)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	matcher := claimreview.NewMatcher(cfg.Scrape.ItemReviewedPaths, nil)
	server := api.NewServer(cfg, a.service, a.runner, matcher, logger)
	serveErr := server.Start(ctx)
	closeErr := a.close()
	if serveErr != nil {
		return fmt.Errorf("api server: %w", serveErr)
	}
	return closeErr
}
