package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// HeadlineSource returns candidate headlines for a coin.
type HeadlineSource interface {
	Name() string
	Headlines(ctx context.Context, coin Coin, limit int) ([]ContentItem, error)
}

// NoHeadline is the placeholder used when no source had a relevant item.
func NoHeadline(coin Coin) string {
	return fmt.Sprintf("No new updates for %s today", coin.Name)
}

// HeadlineFinder asks each source in turn and returns the first relevant
// item. Relevance means the title or excerpt mentions the coin.
type HeadlineFinder struct {
	sources []HeadlineSource
}

func NewHeadlineFinder(sources ...HeadlineSource) *HeadlineFinder {
	var kept []HeadlineSource
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &HeadlineFinder{sources: kept}
}

// Find returns ErrNoContent when every source answered but nothing was
// relevant. A transport error is returned only if no source answered.
func (f *HeadlineFinder) Find(ctx context.Context, coin Coin) (ContentItem, error) {
	var errs []error
	answered := false
	for _, src := range f.sources {
		items, err := src.Headlines(ctx, coin, 10)
		if err != nil {
			if ctx.Err() != nil {
				return ContentItem{}, ctx.Err()
			}
			slog.Warn("headline source failed", "source", src.Name(), "coin", coin.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		answered = true
		if item, ok := FirstRelevant(coin, items); ok {
			return item, nil
		}
	}
	if !answered && len(errs) > 0 {
		return ContentItem{}, errors.Join(errs...)
	}
	return ContentItem{}, ErrNoContent
}

// FirstRelevant picks the first item that mentions coin.
func FirstRelevant(coin Coin, items []ContentItem) (ContentItem, bool) {
	for _, item := range items {
		if coin.Mentions(item.Title) || coin.Mentions(item.Excerpt) {
			return item, true
		}
	}
	return ContentItem{}, false
}
