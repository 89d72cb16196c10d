package model

import "time"

// UserRecord is a tracked visitor and the ordered list of their sessions.
type UserRecord struct {
	ID         string    `json:"id"`
	Username   string    `json:"username,omitempty"`
	DomainName string    `json:"domain_name,omitempty"`
	DateJoined time.Time `json:"date_joined"`
	SessionIDs []string  `json:"session_ids"`
}

// UserSummary is the leaderboard view of a user.
type UserSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username,omitempty"`
	SessionCount int64  `json:"session_count"`
}
