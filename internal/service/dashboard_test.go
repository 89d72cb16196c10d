package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/cache"
	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/presence"
	"github.com/pulsetrack/pulsetrack/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memDashboardCache struct {
	mu      sync.Mutex
	entries map[string]model.MainDashboard
}

func (c *memDashboardCache) GetDashboard(ctx context.Context, domainName string) (*model.MainDashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[domainName]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &d, nil
}

func (c *memDashboardCache) SetDashboard(ctx context.Context, d *model.MainDashboard, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]model.MainDashboard)
	}
	c.entries[d.DomainName] = *d
	return nil
}

// seedDomain stores two users with three sessions: two in the current month
// and one in the previous month.
func seedDomain(t *testing.T, store *testutil.MemStore, now time.Time) {
	t.Helper()
	ctx := context.Background()
	thisMonth := time.Date(now.Year(), now.Month(), 2, 10, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)

	sessions := []*model.SessionRecord{
		testutil.NewTestSession(t, "shop.example", "u1", lastMonth, 60*time.Second),
		testutil.NewTestSession(t, "shop.example", "u1", thisMonth, 3725*time.Second),
		testutil.NewTestSession(t, "shop.example", "u2", thisMonth.Add(time.Hour), 115*time.Second),
	}
	joined := map[string]time.Time{"u1": lastMonth, "u2": thisMonth}
	for _, rec := range sessions {
		if err := store.InsertSession(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if _, err := store.UpsertUserSession(ctx, &model.UserRecord{
			ID: rec.UserID, DomainName: "shop.example", DateJoined: joined[rec.UserID], SessionIDs: []string{rec.ID},
		}); err != nil {
			t.Fatal(err)
		}
	}

	err := store.IncrementCounts(ctx, &model.CountsDelta{
		DomainName:          "shop.example",
		PageCounts:          map[string]int64{"/": 3, "/pricing": 1},
		OSCounts:            map[string]int64{"Linux": 2},
		BounceCounts:        1,
		BounceCountsPerPage: map[string]int64{"/": 1},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newTestDashboard(store *testutil.MemStore, dc DashboardCache, reg *presence.Registry, rec metrics.Recorder, now time.Time) *DashboardService {
	svc := NewDashboardService(store, dc, reg, time.Minute, discardLogger(), rec)
	svc.now = func() time.Time { return now }
	return svc
}

func TestDashboardService_Main(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	seedDomain(t, store, now)
	reg := presence.NewRegistry()
	reg.Connect("shop.example", "u1")

	svc := newTestDashboard(store, nil, reg, nil, now)
	d, err := svc.Page(context.Background(), "shop.example", PageMain)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}

	if d.TotalVisits != 3 || d.TotalVisitors != 2 || d.ActiveUsers != 1 {
		t.Errorf("visits=%d visitors=%d active=%d", d.TotalVisits, d.TotalVisitors, d.ActiveUsers)
	}
	// (60 + 3725 + 115) / 3 = 1300s
	if d.AvgSessionSeconds != 1300 || d.AvgSessionTime != "0 hours, 21 minutes, 40 seconds" {
		t.Errorf("avg = %v %q", d.AvgSessionSeconds, d.AvgSessionTime)
	}
	if d.PageViewAnalysis["/"] != 3 {
		t.Errorf("PageViewAnalysis = %v", d.PageViewAnalysis)
	}
	if d.BounceRate < 33.33 || d.BounceRate > 33.34 {
		t.Errorf("BounceRate = %v, want 1/3 of visits", d.BounceRate)
	}
	// Visits: 2 this month vs 1 last month. New users: 1 vs 1.
	if d.Trends.Visits != 100 || d.Trends.NewUsers != 0 {
		t.Errorf("Trends = %+v", d.Trends)
	}
	// Avg duration: (3725+115)/2 = 1920 vs 60.
	if d.Trends.AvgSessionTime != 3100 {
		t.Errorf("AvgSessionTime trend = %v, want 3100", d.Trends.AvgSessionTime)
	}
}

func TestDashboardService_EmptyDomain(t *testing.T) {
	t.Parallel()

	svc := newTestDashboard(testutil.NewMemStore(), nil, presence.NewRegistry(), nil, time.Now())
	d, err := svc.Main(context.Background(), "empty.example")
	if err != nil {
		t.Fatalf("Main() error = %v", err)
	}
	if d.AvgSessionTime != NoSessionData || d.BounceRate != 0 || d.TotalVisits != 0 {
		t.Errorf("empty dashboard = %+v", d)
	}
}

func TestDashboardService_UnknownPage(t *testing.T) {
	t.Parallel()

	svc := newTestDashboard(testutil.NewMemStore(), nil, presence.NewRegistry(), nil, time.Now())
	if _, err := svc.Page(context.Background(), "shop.example", "SETTINGS"); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("Page() error = %v, want ErrUnknownPage", err)
	}
}

func TestDashboardService_CachesMainButNotPresence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	seedDomain(t, store, now)
	reg := presence.NewRegistry()
	rec := metrics.NewInMemory()
	svc := newTestDashboard(store, &memDashboardCache{}, reg, rec, now)

	if _, err := svc.Main(ctx, "shop.example"); err != nil {
		t.Fatal(err)
	}

	// New data is not visible until the cached entry expires, but presence is.
	if err := store.InsertSession(ctx, testutil.NewTestSession(t, "shop.example", "u3", now, time.Second)); err != nil {
		t.Fatal(err)
	}
	reg.Connect("shop.example", "u3")

	d, err := svc.Main(ctx, "shop.example")
	if err != nil {
		t.Fatal(err)
	}
	if d.TotalVisits != 3 {
		t.Errorf("TotalVisits = %d, want cached 3", d.TotalVisits)
	}
	if d.ActiveUsers != 1 {
		t.Errorf("ActiveUsers = %d, want live 1", d.ActiveUsers)
	}

	snap := rec.Snapshot()
	if snap.DashboardCacheMisses != 1 || snap.DashboardCacheHits != 1 {
		t.Errorf("cache hits=%d misses=%d", snap.DashboardCacheHits, snap.DashboardCacheMisses)
	}
}

func TestDashboardService_Breakdowns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	seedDomain(t, store, now)
	svc := newTestDashboard(store, nil, presence.NewRegistry(), nil, now)

	bounces, err := svc.Bounces(ctx, "shop.example")
	if err != nil {
		t.Fatal(err)
	}
	if bounces.Total != 1 || bounces.PerPage["/"] != 1 {
		t.Errorf("bounces = %+v", bounces)
	}

	devices, err := svc.Devices(ctx, "shop.example")
	if err != nil {
		t.Fatal(err)
	}
	if devices.OS["Linux"] != 2 || len(devices.Browser) != 0 {
		t.Errorf("devices = %+v", devices)
	}

	top, err := svc.TopUsers(ctx, "shop.example", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].ID != "u1" || top[0].SessionCount != 2 {
		t.Errorf("top users = %+v", top)
	}
}

func TestDashboardService_Content(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := testutil.NewMemStore()
	key := model.ContentKey{DomainName: "shop.example", Title: "Guide", Type: model.ContentArticle}
	for _, rate := range []float64{100, 50} {
		if err := store.MergeContent(ctx, &model.ContentDelta{Key: key, Views: 1, CompletionRate: rate, ScrollDepth: rate}); err != nil {
			t.Fatal(err)
		}
	}
	svc := newTestDashboard(store, nil, presence.NewRegistry(), nil, time.Now())

	views, err := svc.Content(ctx, "shop.example", model.ContentArticle)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].AvgCompletionRate != 75 || views[0].AvgScrollDepth != 75 {
		t.Errorf("content = %+v", views)
	}

	if _, err := svc.Content(ctx, "shop.example", "PODCAST"); !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("Content(PODCAST) error = %v", err)
	}
}

func TestDashboardService_UserSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	seedDomain(t, store, now)
	svc := newTestDashboard(store, nil, presence.NewRegistry(), nil, now)

	all, err := svc.UserSessions(ctx, "shop.example", "u1", 0, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("all sessions = %d, %v", len(all), err)
	}

	march, err := svc.UserSessions(ctx, "shop.example", "u1", 2024, 3)
	if err != nil || len(march) != 1 {
		t.Errorf("march sessions = %d, %v", len(march), err)
	}

	year, err := svc.UserSessions(ctx, "shop.example", "u1", 2024, 0)
	if err != nil || len(year) != 2 {
		t.Errorf("2024 sessions = %d, %v", len(year), err)
	}
	prior, err := svc.UserSessions(ctx, "shop.example", "u1", 2023, 0)
	if err != nil || len(prior) != 0 {
		t.Errorf("2023 sessions = %d, %v", len(prior), err)
	}

	if _, err := svc.UserSessions(ctx, "shop.example", "u1", 2024, 13); !errors.Is(err, ErrInvalidMonth) {
		t.Errorf("month 13 error = %v", err)
	}
	if _, err := svc.UserSessions(ctx, "shop.example", "u1", 0, 3); !errors.Is(err, ErrMonthWithoutYear) {
		t.Errorf("month without year error = %v", err)
	}
	if _, err := svc.UserSessions(ctx, "other.example", "u1", 0, 0); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("foreign domain error = %v", err)
	}
	if _, err := svc.UserSessions(ctx, "shop.example", "ghost", 0, 0); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("unknown user error = %v", err)
	}
}

func TestFormatSessionTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stats model.SessionStats
		want  string
	}{
		{model.SessionStats{}, NoSessionData},
		{model.SessionStats{Count: 1, AvgSeconds: 0}, "0 hours, 0 minutes, 0 seconds"},
		{model.SessionStats{Count: 4, AvgSeconds: 3725.9}, "1 hours, 2 minutes, 5 seconds"},
	}
	for _, tt := range tests {
		if got := FormatSessionTime(tt.stats); got != tt.want {
			t.Errorf("FormatSessionTime(%+v) = %q, want %q", tt.stats, got, tt.want)
		}
	}
}

func TestBounceRate(t *testing.T) {
	t.Parallel()

	if BounceRate(5, 0) != 0 {
		t.Error("zero visits should give 0")
	}
	if BounceRate(1, 4) != 25 {
		t.Errorf("BounceRate(1, 4) = %v", BounceRate(1, 4))
	}
}
