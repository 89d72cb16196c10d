package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

// Pipeline stage names, used in logs and the stage failure metric.
const (
	StageContent     = "content"
	StageSession     = "session"
	StageCounts      = "counts"
	StageAffiliation = "affiliation"
)

// AffiliationStore links visitors to the admin that owns their domain.
type AffiliationStore interface {
	// AddAdminUser adds userID to the domain admin's user set.
	// It returns model.ErrAdminNotFound when the domain has no admin.
	AddAdminUser(ctx context.Context, domainName, userID string) error
}

// Store is everything the pipeline writes to.
type Store interface {
	ContentStore
	SessionStore
	CountsStore
	AffiliationStore
}

// Outcome summarizes what happened to one event.
type Outcome struct {
	Discarded   bool
	Session     *model.SessionRecord
	UserCreated bool
	// Failures maps a stage name to its error.
	Failures map[string]error
}

// OK reports whether the event was applied by every stage.
func (o *Outcome) OK() bool {
	return !o.Discarded && len(o.Failures) == 0
}

// Status returns the metric label for the outcome.
func (o *Outcome) Status() string {
	switch {
	case o.Discarded:
		return metrics.EventDiscarded
	case len(o.Failures) > 0:
		return metrics.EventPartial
	default:
		return metrics.EventProcessed
	}
}

// Pipeline folds normalized events into every aggregate.
type Pipeline struct {
	content     *ContentMerger
	sessions    *SessionRecorder
	counts      *CounterAggregator
	affiliation AffiliationStore
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewPipeline creates a Pipeline backed by store.
func NewPipeline(store Store, logger *slog.Logger, recorder metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Pipeline{
		content:     NewContentMerger(store, logger),
		sessions:    NewSessionRecorder(store, logger),
		counts:      NewCounterAggregator(store, logger),
		affiliation: store,
		logger:      logger.With("component", "analytics.pipeline"),
		metrics:     recorder,
	}
}

// ProcessMessage normalizes raw and handles the resulting event.
// A malformed payload is counted and returned as a *RejectError.
func (p *Pipeline) ProcessMessage(ctx context.Context, raw []byte) (*Outcome, error) {
	ev, err := Normalize(raw)
	if err != nil {
		p.metrics.IncEventReceived(metrics.EventMalformed)
		return nil, err
	}
	return p.Handle(ctx, ev), nil
}

// Handle applies ev to all aggregates. The stages touch disjoint data and
// run concurrently; a failing stage never stops the others.
func (p *Pipeline) Handle(ctx context.Context, ev *model.SessionEvent) *Outcome {
	start := time.Now()
	out := &Outcome{}

	if !ev.Identified() {
		p.logger.Warn("discarding event without identity",
			"user_id", ev.UserID,
			"domain_name", ev.DomainName,
		)
		out.Discarded = true
		p.metrics.IncEventReceived(out.Status())
		return out
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]error)
	)
	run := func(stage string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				failures[stage] = err
				mu.Unlock()
			}
		}()
	}

	run(StageContent, func() error {
		return p.content.Merge(ctx, ev)
	})
	run(StageSession, func() error {
		rec, created, err := p.sessions.Record(ctx, ev)
		mu.Lock()
		out.Session, out.UserCreated = rec, created
		mu.Unlock()
		return err
	})
	run(StageCounts, func() error {
		return p.counts.Apply(ctx, ev)
	})
	run(StageAffiliation, func() error {
		err := p.affiliation.AddAdminUser(ctx, ev.DomainName, ev.UserID)
		if errors.Is(err, model.ErrAdminNotFound) {
			p.logger.Info("no admin for domain, skipping affiliation", "domain_name", ev.DomainName)
			return nil
		}
		return err
	})
	wg.Wait()

	for stage, err := range failures {
		p.logger.Error("pipeline stage failed",
			"stage", stage,
			"user_id", ev.UserID,
			"domain_name", ev.DomainName,
			"error", err,
		)
		p.metrics.IncStageFailure(stage)
	}
	if len(failures) > 0 {
		out.Failures = failures
	}

	p.metrics.IncEventReceived(out.Status())
	p.metrics.ObserveEventDuration(time.Since(start))
	p.logger.Debug("event processed",
		"user_id", ev.UserID,
		"domain_name", ev.DomainName,
		"status", out.Status(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}
