package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// SessionStore persists session records and the users that own them.
type SessionStore interface {
	InsertSession(ctx context.Context, rec *model.SessionRecord) error
	// UpsertUserSession appends user.SessionIDs to an existing user, or
	// creates the user as given. It reports whether the user was created.
	UpsertUserSession(ctx context.Context, user *model.UserRecord) (bool, error)
}

// SessionRecorder appends session records and links them to their user.
type SessionRecorder struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewSessionRecorder creates a SessionRecorder.
func NewSessionRecorder(store SessionStore, logger *slog.Logger) *SessionRecorder {
	return &SessionRecorder{
		store:  store,
		logger: logger.With("component", "analytics.session"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return ulid.Make().String() },
	}
}

// Record stores ev as a new session and links it to the user.
// The returned bool reports whether the user was seen for the first time.
func (r *SessionRecorder) Record(ctx context.Context, ev *model.SessionEvent) (*model.SessionRecord, bool, error) {
	now := r.now()
	rec := NewSessionRecord(ev, r.newID(), now)

	if err := r.store.InsertSession(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}

	created, err := r.store.UpsertUserSession(ctx, &model.UserRecord{
		ID:         ev.UserID,
		Username:   ev.Username,
		DomainName: ev.DomainName,
		DateJoined: now,
		SessionIDs: []string{rec.ID},
	})
	if err != nil {
		// The session row stays; it is simply not linked to the user.
		return rec, false, fmt.Errorf("upsert user %s: %w", ev.UserID, err)
	}

	if created {
		r.logger.Info("new user recorded", "user_id", ev.UserID, "domain_name", ev.DomainName)
	}
	return rec, created, nil
}

// NewSessionRecord copies ev into a record. Missing start or end times default to now.
func NewSessionRecord(ev *model.SessionEvent, id string, now time.Time) *model.SessionRecord {
	rec := &model.SessionRecord{
		ID:           id,
		UserID:       ev.UserID,
		DomainName:   ev.DomainName,
		Event:        ev.Event,
		SessionStart: now,
		SessionEnd:   now,
		PathHistory:  ev.PathHistory,
		Bounce:       ev.IsBounce(),
		Location:     ev.Location,
		DeviceStats:  ev.DeviceStats,
		Referrer:     ev.Referrer,
		Interaction:  ev.Interaction,
		CreatedAt:    now,
	}
	if ev.SessionStart != nil {
		rec.SessionStart = ev.SessionStart.UTC()
	}
	if ev.SessionEnd != nil {
		rec.SessionEnd = ev.SessionEnd.UTC()
	}
	if rec.PathHistory == nil {
		rec.PathHistory = []string{}
	}
	return rec
}
