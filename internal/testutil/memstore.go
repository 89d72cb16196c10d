package testutil

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// MemStore is an in-memory implementation of every store interface.
// Each method holds a single lock, which gives it the same atomicity as the
// SQL upserts it stands in for.
type MemStore struct {
	mu       sync.Mutex
	content  map[model.ContentKey]*model.ContentMetric
	counts   map[string]*model.CountsAggregate
	sessions []*model.SessionRecord
	users    map[string]*model.UserRecord
	admins   map[string]*model.AdminRecord

	// Fail, when set, is consulted before every write. A non-nil return
	// fails the call with that error.
	Fail func(op string) error
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		content: make(map[model.ContentKey]*model.ContentMetric),
		counts:  make(map[string]*model.CountsAggregate),
		users:   make(map[string]*model.UserRecord),
		admins:  make(map[string]*model.AdminRecord),
	}
}

func (s *MemStore) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

// MergeContent seeds or increments a content metric.
func (s *MemStore) MergeContent(ctx context.Context, delta *model.ContentDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MergeContent"); err != nil {
		return err
	}
	if m, ok := s.content[delta.Key]; ok {
		delta.ApplyTo(m)
		return nil
	}
	s.content[delta.Key] = delta.Seed()
	return nil
}

// InsertSession appends a session record.
func (s *MemStore) InsertSession(ctx context.Context, rec *model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertSession"); err != nil {
		return err
	}
	cp := *rec
	s.sessions = append(s.sessions, &cp)
	return nil
}

// UpsertUserSession appends session ids or creates the user.
func (s *MemStore) UpsertUserSession(ctx context.Context, user *model.UserRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertUserSession"); err != nil {
		return false, err
	}
	if existing, ok := s.users[user.ID]; ok {
		existing.SessionIDs = append(existing.SessionIDs, user.SessionIDs...)
		if existing.DomainName == "" {
			existing.DomainName = user.DomainName
		}
		if existing.Username == "" {
			existing.Username = user.Username
		}
		return false, nil
	}
	cp := *user
	cp.SessionIDs = slices.Clone(user.SessionIDs)
	s.users[user.ID] = &cp
	return true, nil
}

// IncrementCounts adds delta to the domain aggregate.
func (s *MemStore) IncrementCounts(ctx context.Context, delta *model.CountsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IncrementCounts"); err != nil {
		return err
	}
	agg, ok := s.counts[delta.DomainName]
	if !ok {
		agg = model.NewCountsAggregate(delta.DomainName)
		s.counts[delta.DomainName] = agg
	}
	delta.ApplyTo(agg)
	return nil
}

// AddAdminUser adds userID to the users list of the domain's admin.
func (s *MemStore) AddAdminUser(ctx context.Context, domainName, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AddAdminUser"); err != nil {
		return err
	}
	for _, a := range s.admins {
		if a.DomainName != domainName {
			continue
		}
		if !slices.Contains(a.UsersList, userID) {
			a.UsersList = append(a.UsersList, userID)
		}
		return nil
	}
	return model.ErrAdminNotFound
}

// CreateUser inserts an empty user.
func (s *MemStore) CreateUser(ctx context.Context, user *model.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateUser"); err != nil {
		return err
	}
	cp := *user
	cp.SessionIDs = slices.Clone(user.SessionIDs)
	s.users[user.ID] = &cp
	return nil
}

// GetUser returns a copy of the user.
func (s *MemStore) GetUser(ctx context.Context, id string) (*model.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	cp.SessionIDs = slices.Clone(u.SessionIDs)
	return &cp, nil
}

// CountUsers counts users of a domain who joined within r.
func (s *MemStore) CountUsers(ctx context.Context, domainName string, r model.TimeRange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.DomainName == domainName && r.Contains(u.DateJoined) {
			n++
		}
	}
	return n, nil
}

// SessionStats aggregates the sessions of a domain that started within r.
func (s *MemStore) SessionStats(ctx context.Context, domainName string, r model.TimeRange) (model.SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats model.SessionStats
	var total float64
	for _, rec := range s.sessions {
		if rec.DomainName != domainName || !r.Contains(rec.SessionStart) {
			continue
		}
		stats.Count++
		total += rec.Duration().Seconds()
	}
	if stats.Count > 0 {
		stats.AvgSeconds = total / float64(stats.Count)
	}
	return stats, nil
}

// GetCounts returns a copy of the domain aggregate, or an empty one.
func (s *MemStore) GetCounts(ctx context.Context, domainName string) (*model.CountsAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := model.NewCountsAggregate(domainName)
	agg, ok := s.counts[domainName]
	if !ok {
		return out, nil
	}
	maps.Copy(out.PageCounts, agg.PageCounts)
	maps.Copy(out.OSCounts, agg.OSCounts)
	maps.Copy(out.BrowserCounts, agg.BrowserCounts)
	maps.Copy(out.DeviceCounts, agg.DeviceCounts)
	maps.Copy(out.BounceCountsPerPage, agg.BounceCountsPerPage)
	out.BounceCounts = agg.BounceCounts
	return out, nil
}

// GetContent returns a copy of one content metric.
func (s *MemStore) GetContent(key model.ContentKey) (*model.ContentMetric, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.content[key]
	if !ok {
		return nil, false
	}
	cp := *m
	cp.ChildButtons = maps.Clone(m.ChildButtons)
	return &cp, true
}

// ListContentMetrics returns the domain's metrics, most viewed first.
// An empty typ matches every type.
func (s *MemStore) ListContentMetrics(ctx context.Context, domainName string, typ model.ContentType) ([]*model.ContentMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.ContentMetric, 0)
	for key, m := range s.content {
		if key.DomainName != domainName || (typ != "" && key.Type != typ) {
			continue
		}
		cp := *m
		cp.ChildButtons = maps.Clone(m.ChildButtons)
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.ContentMetric) int {
		if c := cmp.Compare(b.Views+b.Clicks, a.Views+a.Clicks); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return out, nil
}

// ListSessions returns the domain's sessions within r, newest first.
func (s *MemStore) ListSessions(ctx context.Context, domainName string, r model.TimeRange, limit int) ([]*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.SessionRecord, 0)
	for _, rec := range s.sessions {
		if rec.DomainName == domainName && r.Contains(rec.SessionStart) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.SessionRecord) int {
		return b.SessionStart.Compare(a.SessionStart)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUserSessions returns a user's sessions within r, oldest first.
func (s *MemStore) ListUserSessions(ctx context.Context, userID string, r model.TimeRange) ([]*model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return nil, model.ErrUserNotFound
	}
	out := make([]*model.SessionRecord, 0)
	for _, rec := range s.sessions {
		if rec.UserID == userID && r.Contains(rec.SessionStart) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.SessionRecord) int {
		return a.SessionStart.Compare(b.SessionStart)
	})
	return out, nil
}

// TopUsers ranks the domain's users by session count.
func (s *MemStore) TopUsers(ctx context.Context, domainName string, limit int) ([]model.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.UserSummary, 0)
	for _, u := range s.users {
		if u.DomainName != domainName {
			continue
		}
		out = append(out, model.UserSummary{ID: u.ID, Username: u.Username, SessionCount: int64(len(u.SessionIDs))})
	}
	slices.SortFunc(out, func(a, b model.UserSummary) int {
		if c := cmp.Compare(b.SessionCount, a.SessionCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateAdmin inserts an admin, enforcing unique usernames and domains.
func (s *MemStore) CreateAdmin(ctx context.Context, admin *model.AdminRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateAdmin"); err != nil {
		return err
	}
	for _, a := range s.admins {
		if a.Username == admin.Username {
			return model.ErrUsernameExists
		}
		if admin.DomainName != "" && a.DomainName == admin.DomainName {
			return model.ErrDomainClaimed
		}
	}
	cp := *admin
	cp.FeatureList = slices.Clone(admin.FeatureList)
	cp.UsersList = slices.Clone(admin.UsersList)
	s.admins[admin.ID] = &cp
	return nil
}

// GetAdminByID returns a copy of the admin.
func (s *MemStore) GetAdminByID(ctx context.Context, id string) (*model.AdminRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return nil, model.ErrAdminNotFound
	}
	return cloneAdmin(a), nil
}

// GetAdminByUsername returns a copy of the admin.
func (s *MemStore) GetAdminByUsername(ctx context.Context, username string) (*model.AdminRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.admins {
		if a.Username == username {
			return cloneAdmin(a), nil
		}
	}
	return nil, model.ErrAdminNotFound
}

// ListAdmins returns every admin ordered by username.
func (s *MemStore) ListAdmins(ctx context.Context) ([]*model.AdminRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AdminRecord, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, cloneAdmin(a))
	}
	slices.SortFunc(out, func(a, b *model.AdminRecord) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return out, nil
}

// UpdateAdminStatus sets the approval state.
func (s *MemStore) UpdateAdminStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return model.ErrAdminNotFound
	}
	a.Status = status
	return nil
}

// UpdateAdminFeatures replaces the feature list.
func (s *MemStore) UpdateAdminFeatures(ctx context.Context, id string, features []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[id]
	if !ok {
		return model.ErrAdminNotFound
	}
	a.FeatureList = slices.Clone(features)
	return nil
}

func cloneAdmin(a *model.AdminRecord) *model.AdminRecord {
	cp := *a
	cp.FeatureList = slices.Clone(a.FeatureList)
	cp.UsersList = slices.Clone(a.UsersList)
	return &cp
}
