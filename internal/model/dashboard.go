package model

import "time"

// MainDashboard is the overview page for a domain.
type MainDashboard struct {
	DomainName        string           `json:"domain_name"`
	TotalVisits       int64            `json:"total_visits"`
	TotalVisitors     int64            `json:"total_visitors"`
	ActiveUsers       int              `json:"active_users"`
	AvgSessionSeconds float64          `json:"avg_session_seconds"`
	AvgSessionTime    string           `json:"avg_session_time"`
	PageViewAnalysis  map[string]int64 `json:"page_view_analysis"`
	BounceRate        float64          `json:"bounce_rate"`
	Trends            Trends           `json:"trends"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// Trends holds month-over-month percentage changes.
type Trends struct {
	Visits         float64 `json:"visits"`
	AvgSessionTime float64 `json:"avg_session_time"`
	NewUsers       float64 `json:"new_users"`
}

// DeviceBreakdown groups the client counters of a domain.
type DeviceBreakdown struct {
	OS      map[string]int64 `json:"os_counts"`
	Browser map[string]int64 `json:"browser_counts"`
	Device  map[string]int64 `json:"device_counts"`
}

// BounceBreakdown reports bounces overall and per entry page.
type BounceBreakdown struct {
	Total   int64            `json:"bounce_counts"`
	Rate    float64          `json:"bounce_rate"`
	PerPage map[string]int64 `json:"bounce_counts_per_page"`
}

// SessionStats summarizes the sessions of a domain over a time range.
type SessionStats struct {
	Count      int64   `json:"count"`
	AvgSeconds float64 `json:"avg_seconds"`
}
