package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates every table from the migrations directory.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downSQL, err := os.ReadFile(filepath.Join(root, "migrations", "000001_init.down.sql"))
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(filepath.Join(root, "migrations", "000001_init.up.sql"))
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestEvent creates an identified session event with a two-page history.
func NewTestEvent(t testing.TB, domain, userID string) *model.SessionEvent {
	t.Helper()
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	return &model.SessionEvent{
		Event:        "session_end",
		UserID:       userID,
		Username:     "visitor-" + userID,
		DomainName:   domain,
		SessionStart: &start,
		SessionEnd:   &end,
		PathHistory:  []string{"/", "/pricing"},
		DeviceStats:  &model.DeviceStats{DeviceType: "desktop", Browser: "Firefox", OS: "Linux"},
	}
}

// NewTestSession creates a session record spanning d from start.
func NewTestSession(t testing.TB, domain, userID string, start time.Time, d time.Duration) *model.SessionRecord {
	t.Helper()
	return &model.SessionRecord{
		ID:           UniqueID("sess"),
		UserID:       userID,
		DomainName:   domain,
		SessionStart: start,
		SessionEnd:   start.Add(d),
		PathHistory:  []string{"/"},
		CreatedAt:    start,
	}
}

// NewTestAdmin creates an accepted admin owning domain.
func NewTestAdmin(t testing.TB, username, domain string) *model.AdminRecord {
	t.Helper()
	return &model.AdminRecord{
		ID:           UniqueID("admin"),
		Username:     username,
		PasswordHash: "hash",
		DomainName:   domain,
		Role:         model.RoleAdmin,
		Status:       model.StatusAccepted,
		FeatureList:  []string{model.FeatureMain},
		CreatedAt:    time.Now().UTC(),
	}
}

var idSeq atomic.Uint64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}
