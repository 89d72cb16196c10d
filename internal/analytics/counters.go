package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// CountsStore persists domain-wide counters.
type CountsStore interface {
	// IncrementCounts atomically adds delta to the domain's aggregate,
	// creating it when absent.
	IncrementCounts(ctx context.Context, delta *model.CountsDelta) error
}

// BuildCountsDelta derives the counter increments for ev.
// A path repeated within one session is counted once.
func BuildCountsDelta(ev *model.SessionEvent) *model.CountsDelta {
	delta := &model.CountsDelta{DomainName: ev.DomainName}

	for _, path := range ev.PathHistory {
		if path == "" {
			continue
		}
		if delta.PageCounts == nil {
			delta.PageCounts = make(map[string]int64, len(ev.PathHistory))
		}
		delta.PageCounts[path] = 1
	}

	if ev.IsBounce() {
		delta.BounceCounts = 1
		if len(ev.PathHistory) > 0 && ev.PathHistory[0] != "" {
			delta.BounceCountsPerPage = map[string]int64{ev.PathHistory[0]: 1}
		}
	}

	if ds := ev.DeviceStats; ds != nil {
		if ds.OS != "" {
			delta.OSCounts = map[string]int64{ds.OS: 1}
		}
		if ds.Browser != "" {
			delta.BrowserCounts = map[string]int64{ds.Browser: 1}
		}
		if ds.DeviceType != "" {
			delta.DeviceCounts = map[string]int64{ds.DeviceType: 1}
		}
	}

	return delta
}

// CounterAggregator folds events into the domain counters.
type CounterAggregator struct {
	store  CountsStore
	logger *slog.Logger
}

// NewCounterAggregator creates a CounterAggregator.
func NewCounterAggregator(store CountsStore, logger *slog.Logger) *CounterAggregator {
	return &CounterAggregator{
		store:  store,
		logger: logger.With("component", "analytics.counts"),
	}
}

// Apply increments the counters for ev with a single upsert.
// Events with nothing to count are skipped.
func (a *CounterAggregator) Apply(ctx context.Context, ev *model.SessionEvent) error {
	delta := BuildCountsDelta(ev)
	if delta.IsEmpty() {
		a.logger.Debug("nothing to count", "domain_name", ev.DomainName, "user_id", ev.UserID)
		return nil
	}
	if err := a.store.IncrementCounts(ctx, delta); err != nil {
		return fmt.Errorf("increment counts for %s: %w", ev.DomainName, err)
	}
	return nil
}
