package model

import (
	"slices"
	"time"
)

// Admin roles.
const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPERADMIN"
)

// Admin approval states.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// ValidStatuses lists every approval state.
var ValidStatuses = []string{StatusPending, StatusAccepted, StatusRejected}

// Dashboard features an admin can be granted.
const (
	FeatureMain    = "MAIN"
	FeaturePages   = "PAGES"
	FeatureDevices = "DEVICES"
	FeatureContent = "CONTENT"
	FeatureUsers   = "USERS"
	FeatureTrends  = "TRENDS"
)

// ValidFeatures lists every dashboard feature.
var ValidFeatures = []string{FeatureMain, FeaturePages, FeatureDevices, FeatureContent, FeatureUsers, FeatureTrends}

// AdminRecord is the owner of a tracked domain.
type AdminRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	DomainName   string    `json:"domain_name"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	FeatureList  []string  `json:"feature_list"`
	UsersList    []string  `json:"users_list,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsSuperAdmin reports whether the admin may manage other admins.
func (a *AdminRecord) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// CanLogin reports whether the account has been approved.
func (a *AdminRecord) CanLogin() bool {
	return a.IsSuperAdmin() || a.Status == StatusAccepted
}

// HasFeature checks whether a dashboard feature is allowed.
// Super admins see everything.
func (a *AdminRecord) HasFeature(feature string) bool {
	if a.IsSuperAdmin() {
		return true
	}
	return slices.Contains(a.FeatureList, feature)
}

// ValidStatus reports whether s is a known approval state.
func ValidStatus(s string) bool {
	return slices.Contains(ValidStatuses, s)
}

// AuthContext holds the authenticated admin for a request.
// It is injected into the request context by the auth middleware.
// Features are copied from the token and refresh on the next login.
type AuthContext struct {
	AdminID    string
	Username   string
	Role       string
	DomainName string
	Features   []string
}

// IsSuperAdmin reports whether the caller holds the SUPERADMIN role.
func (a *AuthContext) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// HasFeature checks whether the caller may open a dashboard page.
func (a *AuthContext) HasFeature(feature string) bool {
	return a.IsSuperAdmin() || slices.Contains(a.Features, feature)
}
