package claimreview

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Translator translates claim text. *translate.Translator satisfies it.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Builder assembles ClaimReviewRecords from ClaimReview items.
type Builder struct {
	matcher    *Matcher
	translator Translator
	logger     *slog.Logger
}

// NewBuilder creates a Builder. translator may be nil, in which case requested
// translations always come back null.
func NewBuilder(matcher *Matcher, translator Translator, logger *slog.Logger) *Builder {
	if matcher == nil {
		matcher = NewMatcher(nil, nil)
	}
	return &Builder{
		matcher:    matcher,
		translator: translator,
		logger:     logger.With("component", "record_builder"),
	}
}

// Build maps a ClaimReview item onto a record. It never fails: missing fields stay
// null and a failed translation leaves claim_translated null.
func (b *Builder) Build(ctx context.Context, item types.FeedItem, translate bool) *types.ClaimReviewRecord {
	rec := &types.ClaimReviewRecord{
		ClaimReviewed:        item.ClaimReviewed,
		ReviewRating:         item.ReviewRating,
		DatePublished:        item.DatePublished,
		TranslationRequested: translate,
	}
	if item.URL != nil {
		rec.FactcheckURL = *item.URL
	}

	if translate {
		rec.ClaimTranslated = b.translate(ctx, rec)
	}

	rec.ItemsReviewed = b.matcher.Resolve(item.Descriptor(), rec.FactcheckURL)
	return rec
}

func (b *Builder) translate(ctx context.Context, rec *types.ClaimReviewRecord) *string {
	claim := rec.Claim()
	if claim == "" {
		return nil
	}
	if b.translator == nil {
		b.logger.Debug("translation requested without a translator", "factcheck_url", rec.FactcheckURL)
		return nil
	}

	out, err := b.translator.Translate(ctx, claim)
	if err != nil {
		if errors.Is(err, types.ErrEmptyText) {
			return nil
		}
		b.logger.Warn("could not translate claim, skipping it",
			"factcheck_url", rec.FactcheckURL,
			"claim", claim,
			"error", err,
		)
		return nil
	}
	return &out
}
