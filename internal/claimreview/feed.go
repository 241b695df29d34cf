package claimreview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/IshaanNene/itemreviewed/internal/fetcher"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// DecodeFeed decodes an aggregator data feed and returns its dataFeedElement list.
func DecodeFeed(r io.Reader) ([]types.FeedElement, error) {
	var feed types.DataFeed
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode data feed: %w", err)
	}
	return feed.DataFeedElement, nil
}

// GetRelevantItems flattens the item lists of elements, keeping only items with a
// url and a non-empty itemReviewed.
func GetRelevantItems(elements []types.FeedElement) []types.FeedItem {
	var items []types.FeedItem
	for _, elem := range elements {
		for _, item := range elem.Item {
			if item.Eligible() {
				items = append(items, item)
			}
		}
	}
	return items
}

// FeedClient downloads the aggregator data feed.
type FeedClient struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

// NewFeedClient creates a FeedClient on top of f.
func NewFeedClient(f fetcher.Fetcher, logger *slog.Logger) *FeedClient {
	return &FeedClient{
		fetcher: f,
		logger:  logger.With("component", "feed_client"),
	}
}

// Fetch downloads and decodes the feed at feedURL.
func (c *FeedClient) Fetch(ctx context.Context, feedURL string) ([]types.FeedElement, error) {
	resp, err := c.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, &types.ParseError{URL: feedURL, Source: "feed", Err: types.ErrEmptyResponse}
	}

	elements, err := DecodeFeed(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &types.ParseError{URL: feedURL, Source: "feed", Err: err}
	}

	c.logger.Info("data feed downloaded",
		"url", feedURL,
		"elements", len(elements),
		"bytes", len(resp.Body),
		"duration", resp.FetchDuration,
	)
	return elements, nil
}
