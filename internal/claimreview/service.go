package claimreview

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/itemreviewed/internal/fetcher"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/parser"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// PageOptions controls what ParsePage adds to a record.
type PageOptions struct {
	// LocateLinks attaches the position of each reviewed URL within the page.
	LocateLinks bool
	// Translate requests a translation of the claim.
	Translate bool
	// AllBlocks logs how many claim review blocks the page carries.
	AllBlocks bool
}

// Service wires fetching, extraction and record building together.
type Service struct {
	fetcher   fetcher.Fetcher
	feed      *FeedClient
	extractor *parser.ClaimReviewExtractor
	builder   *Builder
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(f fetcher.Fetcher, builder *Builder, logger *slog.Logger) *Service {
	return &Service{
		fetcher:   f,
		feed:      NewFeedClient(f, logger),
		extractor: parser.NewClaimReviewExtractor(logger),
		builder:   builder,
		logger:    logger.With("component", "claimreview_service"),
	}
}

// SetMetrics attaches a metrics sink.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// FetchFeed downloads the data feed and returns its eligible items.
func (s *Service) FetchFeed(ctx context.Context, feedURL string) ([]types.FeedItem, error) {
	elements, err := s.feed.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	items := GetRelevantItems(elements)
	s.logger.Info("relevant feed items", "count", len(items))
	return items, nil
}

// BuildItem builds the record for a single feed item.
func (s *Service) BuildItem(ctx context.Context, item types.FeedItem, translate bool) *types.ClaimReviewRecord {
	rec := s.builder.Build(ctx, item, translate)
	s.metrics.RecordBuilt("feed")
	return rec
}

// ParseFeed downloads the data feed and builds one record per eligible item.
func (s *Service) ParseFeed(ctx context.Context, feedURL string, translate bool) ([]*types.ClaimReviewRecord, error) {
	items, err := s.FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	records := make([]*types.ClaimReviewRecord, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		records = append(records, s.BuildItem(ctx, item, translate))
	}
	return records, nil
}

// ParsePage fetches a fact-check page and builds a record from its first ClaimReview.
// It returns (nil, nil) when the page carries no claim review.
func (s *Service) ParsePage(ctx context.Context, pageURL string, opts PageOptions) (*types.ClaimReviewRecord, error) {
	resp, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.ParseResponse(ctx, resp, opts)
}

// ParseResponse builds a record from an already fetched page.
func (s *Service) ParseResponse(ctx context.Context, resp *types.Response, opts PageOptions) (*types.ClaimReviewRecord, error) {
	pageURL := resp.PageURL()

	root, err := resp.Node()
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Source: "html", Err: err}
	}
	if !parser.HasClaimReview(root) {
		s.logger.Debug("page has no claim review", "url", pageURL)
		return nil, nil
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Source: "html", Err: err}
	}
	block, ok := s.extractor.Extract(doc, pageURL)
	if !ok {
		s.logger.Debug("claim review marker present but no block decoded", "url", pageURL)
		return nil, nil
	}
	if opts.AllBlocks {
		if n := len(s.extractor.ExtractAll(doc, pageURL)); n > 1 {
			s.logger.Info("page carries several claim reviews, using the first", "url", pageURL, "count", n)
		}
	}
	if u, _ := block["url"].(string); u == "" {
		block["url"] = pageURL
	}

	item, err := types.FeedItemFromMap(block)
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Source: "json-ld", Err: err}
	}

	rec := s.builder.Build(ctx, item, opts.Translate)
	if opts.LocateLinks {
		for _, target := range rec.ItemsReviewed {
			if lc := parser.LocateLink(root, target, rec.FactcheckURL); lc != nil {
				rec.Links = append(rec.Links, *lc)
			}
		}
	}
	s.metrics.RecordBuilt("page")
	return rec, nil
}
