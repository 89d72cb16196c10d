// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RegisterRequest is the body of POST /api/v1/admin/register.
type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DomainName string `json:"domain_name"`
}

// LoginRequest is the body of POST /api/v1/admin/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token of a successful login.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Admin       AdminResponse `json:"admin"`
}

// AdminResponse is an admin without its password hash.
type AdminResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DomainName  string    `json:"domain_name,omitempty"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	FeatureList []string  `json:"feature_list"`
	UserCount   int       `json:"user_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdminListResponse lists admins.
type AdminListResponse struct {
	Data  []AdminResponse `json:"data"`
	Total int             `json:"total"`
}

// StatusRequest is the body of PATCH /api/v1/admin/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// FeaturesRequest is the body of PUT /api/v1/admin/{id}/features.
type FeaturesRequest struct {
	Features []string `json:"features"`
}

// CreateUserResponse returns a freshly minted visitor id.
type CreateUserResponse struct {
	UserID string `json:"user_id"`
}

// ActiveUsersResponse lists the visitors connected right now.
type ActiveUsersResponse struct {
	DomainName  string   `json:"domain_name"`
	ActiveUsers int      `json:"active_users"`
	UserIDs     []string `json:"user_ids"`
}

// ListResponse wraps a list payload.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// ToAdminResponse converts an AdminRecord to its API form.
func ToAdminResponse(a *model.AdminRecord) AdminResponse {
	features := a.FeatureList
	if features == nil {
		features = []string{}
	}
	return AdminResponse{
		ID:          a.ID,
		Username:    a.Username,
		DomainName:  a.DomainName,
		Role:        a.Role,
		Status:      a.Status,
		FeatureList: features,
		UserCount:   len(a.UsersList),
		CreatedAt:   a.CreatedAt,
	}
}

// ToAdminListResponse converts a slice of admins.
func ToAdminListResponse(admins []*model.AdminRecord) *AdminListResponse {
	out := make([]AdminResponse, len(admins))
	for i, a := range admins {
		out[i] = ToAdminResponse(a)
	}
	return &AdminListResponse{Data: out, Total: len(out)}
}

// NewList wraps items, never encoding null.
func NewList[T any](items []T) *ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &ListResponse[T]{Data: items, Total: len(items)}
}
