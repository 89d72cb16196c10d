// Package model defines domain entities for the application.
package model

import "time"

// SessionEvent is one normalized message received from a tracked site.
// Optional scalars are pointers so that "not reported" and "zero" stay distinct.
type SessionEvent struct {
	Event        string       `json:"event,omitempty"`
	UserID       string       `json:"user_id"`
	Username     string       `json:"username,omitempty"`
	DomainName   string       `json:"domain_name"`
	SessionStart *time.Time   `json:"session_start,omitempty"`
	SessionEnd   *time.Time   `json:"session_end,omitempty"`
	PathHistory  []string     `json:"path_history,omitempty"`
	Bounce       *bool        `json:"bounce,omitempty"`
	Location     *Location    `json:"location,omitempty"`
	DeviceStats  *DeviceStats `json:"device_stats,omitempty"`
	Referrer     *Attribution `json:"referrer,omitempty"`
	Interaction  Interaction  `json:"interaction"`
}

// Identified reports whether the event names both a user and a domain.
// Unidentified events are dropped without side effects.
func (e *SessionEvent) Identified() bool {
	return e != nil && e.UserID != "" && e.DomainName != ""
}

// IsBounce reports whether the session was flagged as a bounce.
func (e *SessionEvent) IsBounce() bool {
	return e.Bounce != nil && *e.Bounce
}

// ReferrerSource returns the attribution source, or "" when none was sent.
func (e *SessionEvent) ReferrerSource() string {
	if e.Referrer == nil {
		return ""
	}
	return e.Referrer.Source
}

// Location is the approximate visitor position.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// DeviceStats describes the visitor's client.
type DeviceStats struct {
	DeviceType string `json:"deviceType,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
}

// Attribution carries UTM campaign data.
type Attribution struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
}

// Interaction bundles everything the visitor did with on-page content.
type Interaction struct {
	Videos       []VideoPlay   `json:"video_data,omitempty"`
	Buttons      []ButtonClick `json:"button_data,omitempty"`
	Contents     []ContentView `json:"contents_data,omitempty"`
	ChildButtons []ChildButton `json:"child_buttons_data,omitempty"`
}

// IsEmpty reports whether no interaction was recorded.
func (i Interaction) IsEmpty() bool {
	return len(i.Videos) == 0 && len(i.Buttons) == 0 && len(i.Contents) == 0 && len(i.ChildButtons) == 0
}

// VideoPlay is a single video watched during the session.
type VideoPlay struct {
	ContentType     string         `json:"content_type,omitempty"`
	Title           string         `json:"title"`
	StartedWatching *time.Time     `json:"started_watching,omitempty"`
	LastInteraction *time.Time     `json:"last_interaction,omitempty"`
	TotalWatchTime  *float64       `json:"total_watch_time,omitempty"`
	Segments        []VideoSegment `json:"session_information,omitempty"`
	Ended           bool           `json:"ended"`
}

// VideoSegment is one contiguous stretch of playback.
type VideoSegment struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
	Completed bool       `json:"completed"`
}

// ButtonClick is a top-level call-to-action button.
type ButtonClick struct {
	ContentType  string `json:"content_type,omitempty"`
	Title        string `json:"content_title"`
	Click        *int64 `json:"click,omitempty"`
	ContentsType string `json:"contents_type,omitempty"`
}

// ContentView is an article or other readable block.
type ContentView struct {
	ContentType    string     `json:"content_type,omitempty"`
	Title          string     `json:"content_title"`
	WordCount      *int       `json:"word_count,omitempty"`
	ScrolledDepth  *float64   `json:"scrolled_depth,omitempty"`
	StartWatchTime *time.Time `json:"start_watch_time,omitempty"`
	EndWatchTime   *time.Time `json:"ended_watch_time,omitempty"`
	IsActive       bool       `json:"isactive"`
}

// DwellSeconds returns the time spent on the content, or 0 unless both ends
// are known and in order.
func (c ContentView) DwellSeconds() float64 {
	if c.StartWatchTime == nil || c.EndWatchTime == nil {
		return 0
	}
	return max(c.EndWatchTime.Sub(*c.StartWatchTime).Seconds(), 0)
}

// ChildButton is a button nested under a content item, linked to it by title.
type ChildButton struct {
	ContentType        string `json:"content_type,omitempty"`
	Title              string `json:"content_title"`
	Click              *int64 `json:"click,omitempty"`
	ContentsType       string `json:"contents_type,omitempty"`
	ParentContentTitle string `json:"parent_content_title"`
}

// SessionRecord is the persisted, append-only copy of a SessionEvent.
// The username lives on the UserRecord only.
type SessionRecord struct {
	ID           string       `json:"id"` // ULID
	UserID       string       `json:"user_id"`
	DomainName   string       `json:"domain_name"`
	Event        string       `json:"event,omitempty"`
	SessionStart time.Time    `json:"session_start"`
	SessionEnd   time.Time    `json:"session_end"`
	PathHistory  []string     `json:"path_history"`
	Bounce       bool         `json:"bounce"`
	Location     *Location    `json:"location,omitempty"`
	DeviceStats  *DeviceStats `json:"device_stats,omitempty"`
	Referrer     *Attribution `json:"referrer,omitempty"`
	Interaction  Interaction  `json:"interaction"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Duration returns the session length; negative spans count as zero.
func (s *SessionRecord) Duration() time.Duration {
	d := s.SessionEnd.Sub(s.SessionStart)
	if d < 0 {
		return 0
	}
	return d
}

// TimeRange is a half-open interval [From, To). A zero bound is unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// MonthRange returns the calendar month [first-of-month, first-of-next-month) in UTC.
func MonthRange(year int, month time.Month) TimeRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return TimeRange{From: from, To: from.AddDate(0, 1, 0)}
}

// YearRange returns the calendar year [Jan 1, Jan 1 of the next year) in UTC.
func YearRange(year int) TimeRange {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return TimeRange{From: from, To: from.AddDate(1, 0, 0)}
}
