// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/cache"
	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

// NoSessionData is the average session text for a domain without sessions.
const NoSessionData = "No Session Data Available"

// PageMain is the only aggregate dashboard page.
const PageMain = model.FeatureMain

// Service errors.
var (
	ErrUnknownPage        = errors.New("unknown dashboard page")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrInvalidMonth       = errors.New("month must be between 1 and 12")
	ErrMonthWithoutYear   = errors.New("month requires year")
	ErrInvalidTimeSpan    = errors.New("from must be before to")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DashboardRepository is the read side of the aggregate store.
type DashboardRepository interface {
	CountUsers(ctx context.Context, domainName string, r model.TimeRange) (int64, error)
	SessionStats(ctx context.Context, domainName string, r model.TimeRange) (model.SessionStats, error)
	GetCounts(ctx context.Context, domainName string) (*model.CountsAggregate, error)
	ListContentMetrics(ctx context.Context, domainName string, typ model.ContentType) ([]*model.ContentMetric, error)
	ListSessions(ctx context.Context, domainName string, r model.TimeRange, limit int) ([]*model.SessionRecord, error)
	TopUsers(ctx context.Context, domainName string, limit int) ([]model.UserSummary, error)
	GetUser(ctx context.Context, id string) (*model.UserRecord, error)
	ListUserSessions(ctx context.Context, userID string, r model.TimeRange) ([]*model.SessionRecord, error)
}

// DashboardCache stores rendered main dashboards.
type DashboardCache interface {
	GetDashboard(ctx context.Context, domainName string) (*model.MainDashboard, error)
	SetDashboard(ctx context.Context, d *model.MainDashboard, ttl time.Duration) error
}

// Presence reports live connections.
type Presence interface {
	ActiveCount(domain string) int
	Users(domain string) []string
}

// DashboardService answers dashboard queries for one domain at a time.
type DashboardService struct {
	repo     DashboardRepository
	cache    DashboardCache
	presence Presence
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewDashboardService creates a DashboardService. cache may be nil to disable caching.
func NewDashboardService(repo DashboardRepository, dc DashboardCache, presence Presence, cacheTTL time.Duration, logger *slog.Logger, recorder metrics.Recorder) *DashboardService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &DashboardService{
		repo:     repo,
		cache:    dc,
		presence: presence,
		cacheTTL: cacheTTL,
		logger:   logger.With("component", "service.dashboard"),
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Page returns the dashboard named page. Only MAIN is an aggregate page;
// the breakdowns have their own methods.
func (s *DashboardService) Page(ctx context.Context, domainName, page string) (*model.MainDashboard, error) {
	if page != PageMain {
		return nil, ErrUnknownPage
	}
	return s.Main(ctx, domainName)
}

// Main builds the overview dashboard. The stored part is cached; the active
// user count is always live.
func (s *DashboardService) Main(ctx context.Context, domainName string) (*model.MainDashboard, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		cached, err := s.cache.GetDashboard(ctx, domainName)
		switch {
		case err == nil:
			s.metrics.IncDashboardCacheHit()
			cached.ActiveUsers = s.presence.ActiveCount(domainName)
			return cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncDashboardCacheMiss()
		default:
			s.logger.Warn("dashboard cache read failed", "domain_name", domainName, "error", err)
		}
	}

	d, err := s.buildMain(ctx, domainName)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.SetDashboard(ctx, d, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", "domain_name", domainName, "error", err)
		}
	}

	d.ActiveUsers = s.presence.ActiveCount(domainName)
	return d, nil
}

func (s *DashboardService) buildMain(ctx context.Context, domainName string) (*model.MainDashboard, error) {
	visitors, err := s.repo.CountUsers(ctx, domainName, model.TimeRange{})
	if err != nil {
		return nil, fmt.Errorf("count visitors: %w", err)
	}
	stats, err := s.repo.SessionStats(ctx, domainName, model.TimeRange{})
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	counts, err := s.repo.GetCounts(ctx, domainName)
	if err != nil {
		return nil, fmt.Errorf("get counts: %w", err)
	}
	trends, err := s.Trends(ctx, domainName)
	if err != nil {
		return nil, err
	}

	return &model.MainDashboard{
		DomainName:        domainName,
		TotalVisits:       stats.Count,
		TotalVisitors:     visitors,
		AvgSessionSeconds: stats.AvgSeconds,
		AvgSessionTime:    FormatSessionTime(stats),
		PageViewAnalysis:  counts.PageCounts,
		BounceRate:        BounceRate(counts.BounceCounts, stats.Count),
		Trends:            trends,
		GeneratedAt:       s.now(),
	}, nil
}

// Trends compares the current month to date with the previous month.
func (s *DashboardService) Trends(ctx context.Context, domainName string) (model.Trends, error) {
	current, previous := MonthWindows(s.now())

	cur, err := s.repo.SessionStats(ctx, domainName, current)
	if err != nil {
		return model.Trends{}, fmt.Errorf("current session stats: %w", err)
	}
	prev, err := s.repo.SessionStats(ctx, domainName, previous)
	if err != nil {
		return model.Trends{}, fmt.Errorf("previous session stats: %w", err)
	}
	curUsers, err := s.repo.CountUsers(ctx, domainName, current)
	if err != nil {
		return model.Trends{}, fmt.Errorf("current new users: %w", err)
	}
	prevUsers, err := s.repo.CountUsers(ctx, domainName, previous)
	if err != nil {
		return model.Trends{}, fmt.Errorf("previous new users: %w", err)
	}

	return model.Trends{
		Visits:         PercentChange(float64(cur.Count), float64(prev.Count)),
		AvgSessionTime: PercentChange(cur.AvgSeconds, prev.AvgSeconds),
		NewUsers:       PercentChange(float64(curUsers), float64(prevUsers)),
	}, nil
}

// Pages returns the page hit counters.
func (s *DashboardService) Pages(ctx context.Context, domainName string) (map[string]int64, error) {
	counts, err := s.repo.GetCounts(ctx, domainName)
	if err != nil {
		return nil, err
	}
	return counts.PageCounts, nil
}

// Bounces returns bounce totals and the per-entry-page breakdown.
func (s *DashboardService) Bounces(ctx context.Context, domainName string) (*model.BounceBreakdown, error) {
	counts, err := s.repo.GetCounts(ctx, domainName)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.SessionStats(ctx, domainName, model.TimeRange{})
	if err != nil {
		return nil, err
	}
	return &model.BounceBreakdown{
		Total:   counts.BounceCounts,
		Rate:    BounceRate(counts.BounceCounts, stats.Count),
		PerPage: counts.BounceCountsPerPage,
	}, nil
}

// Devices returns the OS, browser and device type counters.
func (s *DashboardService) Devices(ctx context.Context, domainName string) (*model.DeviceBreakdown, error) {
	counts, err := s.repo.GetCounts(ctx, domainName)
	if err != nil {
		return nil, err
	}
	return &model.DeviceBreakdown{
		OS:      counts.OSCounts,
		Browser: counts.BrowserCounts,
		Device:  counts.DeviceCounts,
	}, nil
}

// Content returns content metrics with their derived averages.
// An empty typ returns every type.
func (s *DashboardService) Content(ctx context.Context, domainName string, typ model.ContentType) ([]model.ContentMetricView, error) {
	if typ != "" && !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, typ)
	}
	list, err := s.repo.ListContentMetrics(ctx, domainName, typ)
	if err != nil {
		return nil, err
	}
	out := make([]model.ContentMetricView, 0, len(list))
	for _, m := range list {
		out = append(out, m.View())
	}
	return out, nil
}

// Sessions lists recent sessions of the domain within r.
func (s *DashboardService) Sessions(ctx context.Context, domainName string, r model.TimeRange, limit int) ([]*model.SessionRecord, error) {
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return nil, ErrInvalidTimeSpan
	}
	return s.repo.ListSessions(ctx, domainName, r, clampLimit(limit))
}

// TopUsers ranks the domain's visitors by number of sessions.
func (s *DashboardService) TopUsers(ctx context.Context, domainName string, limit int) ([]model.UserSummary, error) {
	return s.repo.TopUsers(ctx, domainName, clampLimit(limit))
}

// UserSessions returns one visitor's sessions, optionally limited to a
// calendar year or month. year 0 means all time and month 0 the whole year.
// A user of another domain is reported as not found.
func (s *DashboardService) UserSessions(ctx context.Context, domainName, userID string, year int, month int) ([]*model.SessionRecord, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if domainName != "" && user.DomainName != domainName {
		return nil, model.ErrUserNotFound
	}

	var r model.TimeRange
	switch {
	case year == 0 && month != 0:
		return nil, ErrMonthWithoutYear
	case month < 0 || month > 12:
		return nil, ErrInvalidMonth
	case year != 0 && month == 0:
		r = model.YearRange(year)
	case year != 0:
		r = model.MonthRange(year, time.Month(month))
	}
	return s.repo.ListUserSessions(ctx, userID, r)
}

// ActiveUsers returns the users currently connected to the domain.
func (s *DashboardService) ActiveUsers(domainName string) []string {
	return s.presence.Users(domainName)
}

// BounceRate is bounces per visit in percent, 0 without visits.
func BounceRate(bounces, visits int64) float64 {
	if visits <= 0 {
		return 0
	}
	return float64(bounces) / float64(visits) * 100
}

// FormatSessionTime renders the average session duration as
// "H hours, M minutes, S seconds", or NoSessionData without sessions.
func FormatSessionTime(stats model.SessionStats) string {
	if stats.Count == 0 {
		return NoSessionData
	}
	total := int64(stats.AvgSeconds)
	return fmt.Sprintf("%d hours, %d minutes, %d seconds", total/3600, total%3600/60, total%60)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
