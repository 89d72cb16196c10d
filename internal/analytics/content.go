package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// ContentStore persists content metrics.
type ContentStore interface {
	// MergeContent atomically creates the metric seeded with delta, or adds
	// delta to the existing one.
	MergeContent(ctx context.Context, delta *model.ContentDelta) error
}

// BuildContentDeltas turns the interaction bundle of ev into one delta per item.
// Items without a title cannot be keyed and are skipped. Negative durations,
// depths and counts are read as 0 so that aggregates only grow.
func BuildContentDeltas(ev *model.SessionEvent) []*model.ContentDelta {
	in := ev.Interaction
	referrer := ev.ReferrerSource()
	deltas := make([]*model.ContentDelta, 0, len(in.Videos)+len(in.Contents)+len(in.Buttons))

	for _, video := range in.Videos {
		if video.Title == "" {
			continue
		}
		tally := ResolveChildButtons(in.ChildButtons, video.Title)

		var completion float64
		if video.Ended {
			completion = 100
		}
		deltas = append(deltas, &model.ContentDelta{
			Key:            model.ContentKey{DomainName: ev.DomainName, Title: video.Title, Type: model.ContentVideo},
			Views:          1,
			WatchTime:      nonNegative(video.TotalWatchTime),
			CompletionRate: completion,
			CTAClicks:      tally.CTAClicks,
			Likes:          tally.Likes,
			Subscribers:    tally.Subscribers,
			Referrer:       referrer,
			ChildButtons:   tally.Buttons,
		})
	}

	for _, content := range in.Contents {
		if content.Title == "" {
			continue
		}
		tally := ResolveChildButtons(in.ChildButtons, content.Title)
		dwell := content.DwellSeconds()

		deltas = append(deltas, &model.ContentDelta{
			Key:            model.ContentKey{DomainName: ev.DomainName, Title: content.Title, Type: model.ContentArticle},
			Views:          1,
			WatchTime:      dwell,
			CompletionRate: CompletionRate(content.WordCount, content.ScrolledDepth, &dwell),
			ScrollDepth:    nonNegative(content.ScrolledDepth),
			CTAClicks:      tally.CTAClicks,
			Likes:          tally.Likes,
			Subscribers:    tally.Subscribers,
			Referrer:       referrer,
			ChildButtons:   tally.Buttons,
		})
	}

	for _, button := range in.Buttons {
		if button.Title == "" {
			continue
		}
		// An absent or zero count is one click; a negative count adds nothing.
		clicks := int64(1)
		if button.Click != nil && *button.Click != 0 {
			clicks = max(*button.Click, 0)
		}
		deltas = append(deltas, &model.ContentDelta{
			Key:    model.ContentKey{DomainName: ev.DomainName, Title: button.Title, Type: model.ContentButton},
			Clicks: clicks,
		})
	}

	return deltas
}

// ContentMerger applies content deltas for an event.
type ContentMerger struct {
	store  ContentStore
	logger *slog.Logger
}

// NewContentMerger creates a ContentMerger.
func NewContentMerger(store ContentStore, logger *slog.Logger) *ContentMerger {
	return &ContentMerger{
		store:  store,
		logger: logger.With("component", "analytics.content"),
	}
}

// Merge applies every content delta of ev. Each item is written on its own:
// a failed item is logged and the remaining items are still applied.
// The returned error joins all item failures.
func (m *ContentMerger) Merge(ctx context.Context, ev *model.SessionEvent) error {
	var errs []error
	for _, delta := range BuildContentDeltas(ev) {
		if err := m.store.MergeContent(ctx, delta); err != nil {
			m.logger.Error("failed to merge content metric",
				"domain_name", delta.Key.DomainName,
				"title", delta.Key.Title,
				"type", string(delta.Key.Type),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("merge %s %q: %w", delta.Key.Type, delta.Key.Title, err))
		}
	}
	return errors.Join(errs...)
}

// nonNegative returns *v, or 0 when v is nil or negative.
func nonNegative(v *float64) float64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
