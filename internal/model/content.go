package model

// ContentType classifies a content metric.
type ContentType string

// Content types tracked per domain.
const (
	ContentVideo   ContentType = "VIDEO"
	ContentArticle ContentType = "CONTENT"
	ContentButton  ContentType = "BUTTON"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentVideo, ContentArticle, ContentButton:
		return true
	}
	return false
}

// ContentKey identifies a ContentMetric within the whole system.
type ContentKey struct {
	DomainName string
	Title      string
	Type       ContentType
}

// ContentMetric holds running sums for one (domain, title, type).
// Averages are derived at read time; the stored values are never averaged.
type ContentMetric struct {
	DomainName        string           `json:"domain_name"`
	Title             string           `json:"title"`
	Type              ContentType      `json:"type"`
	Views             int64            `json:"views"`
	SumWatchTime      float64          `json:"sum_watch_time"`
	SumCompletionRate float64          `json:"sum_completion_rate"`
	SumScrollDepth    float64          `json:"sum_scroll_depth"`
	CTAClicks         int64            `json:"cta_clicks"`
	Likes             int64            `json:"likes"`
	Subscribers       int64            `json:"subscribers"`
	Clicks            int64            `json:"clicks"`
	Referrer          string           `json:"referrer"`
	ChildButtons      map[string]int64 `json:"child_buttons"`
}

// Key returns the metric's identity.
func (m *ContentMetric) Key() ContentKey {
	return ContentKey{DomainName: m.DomainName, Title: m.Title, Type: m.Type}
}

// AvgWatchTime is the mean watch time per view in seconds.
func (m *ContentMetric) AvgWatchTime() float64 {
	return perView(m.SumWatchTime, m.Views)
}

// AvgCompletionRate is the mean completion score (0-100) per view.
func (m *ContentMetric) AvgCompletionRate() float64 {
	return perView(m.SumCompletionRate, m.Views)
}

// AvgScrollDepth is the mean scroll depth (0-100) per view.
func (m *ContentMetric) AvgScrollDepth() float64 {
	return perView(m.SumScrollDepth, m.Views)
}

// LikeRate is the percentage of views that left a like.
func (m *ContentMetric) LikeRate() float64 {
	return perView(float64(m.Likes), m.Views) * 100
}

// SubscriptionRate is the percentage of views that subscribed.
func (m *ContentMetric) SubscriptionRate() float64 {
	return perView(float64(m.Subscribers), m.Views) * 100
}

func perView(sum float64, views int64) float64 {
	if views <= 0 {
		return 0
	}
	return sum / float64(views)
}

// ContentMetricView is a ContentMetric together with its derived averages.
type ContentMetricView struct {
	*ContentMetric
	AvgWatchTime      float64 `json:"avg_watch_time"`
	AvgCompletionRate float64 `json:"avg_completion_rate"`
	AvgScrollDepth    float64 `json:"avg_scroll_depth"`
	LikeRate          float64 `json:"like_rate"`
	SubscriptionRate  float64 `json:"subscription_rate"`
}

// View derives the read-time averages.
func (m *ContentMetric) View() ContentMetricView {
	return ContentMetricView{
		ContentMetric:     m,
		AvgWatchTime:      m.AvgWatchTime(),
		AvgCompletionRate: m.AvgCompletionRate(),
		AvgScrollDepth:    m.AvgScrollDepth(),
		LikeRate:          m.LikeRate(),
		SubscriptionRate:  m.SubscriptionRate(),
	}
}

// ContentDelta is one increment for a content metric. When the metric does
// not exist yet the delta doubles as its seed.
type ContentDelta struct {
	Key            ContentKey
	Views          int64
	WatchTime      float64
	CompletionRate float64
	ScrollDepth    float64
	CTAClicks      int64
	Likes          int64
	Subscribers    int64
	Clicks         int64
	// Referrer overwrites the stored value only when non-empty.
	Referrer     string
	ChildButtons map[string]int64
}

// Seed returns the metric created by applying the delta to nothing.
func (d *ContentDelta) Seed() *ContentMetric {
	m := &ContentMetric{
		DomainName:   d.Key.DomainName,
		Title:        d.Key.Title,
		Type:         d.Key.Type,
		ChildButtons: make(map[string]int64, len(d.ChildButtons)),
	}
	d.ApplyTo(m)
	return m
}

// ApplyTo folds the delta into m in place.
func (d *ContentDelta) ApplyTo(m *ContentMetric) {
	m.Views += d.Views
	m.SumWatchTime += d.WatchTime
	m.SumCompletionRate += d.CompletionRate
	m.SumScrollDepth += d.ScrollDepth
	m.CTAClicks += d.CTAClicks
	m.Likes += d.Likes
	m.Subscribers += d.Subscribers
	m.Clicks += d.Clicks
	if d.Referrer != "" {
		m.Referrer = d.Referrer
	}
	if len(d.ChildButtons) > 0 && m.ChildButtons == nil {
		m.ChildButtons = make(map[string]int64, len(d.ChildButtons))
	}
	for label, n := range d.ChildButtons {
		m.ChildButtons[label] += n
	}
}
