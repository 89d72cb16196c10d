package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// Admin errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminNotApproved   = errors.New("admin account is not approved")
	ErrInvalidStatus      = errors.New("invalid admin status")
	ErrInvalidFeature     = errors.New("invalid dashboard feature")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrMissingField       = errors.New("username and domain_name are required")
)

const minPasswordLength = 8

// AdminRepository persists admins.
type AdminRepository interface {
	CreateAdmin(ctx context.Context, admin *model.AdminRecord) error
	GetAdminByID(ctx context.Context, id string) (*model.AdminRecord, error)
	GetAdminByUsername(ctx context.Context, username string) (*model.AdminRecord, error)
	ListAdmins(ctx context.Context) ([]*model.AdminRecord, error)
	UpdateAdminStatus(ctx context.Context, id, status string) error
	UpdateAdminFeatures(ctx context.Context, id string, features []string) error
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// TokenIssuer signs bearer tokens for admins.
type TokenIssuer interface {
	Issue(admin *model.AdminRecord) (string, time.Time, error)
}

// AdminService handles admin registration, login and approval.
type AdminService struct {
	repo   AdminRepository
	hasher PasswordHasher
	tokens TokenIssuer
	logger *slog.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(repo AdminRepository, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger) *AdminService {
	return &AdminService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With("component", "service.admin"),
	}
}

// RegisterInput defines input for registering an admin.
type RegisterInput struct {
	Username   string
	Password   string
	DomainName string
	Role       string
}

// Register creates an admin. New ADMIN accounts start PENDING with the MAIN
// page only; a SUPERADMIN is accepted immediately and owns no domain.
func (s *AdminService) Register(ctx context.Context, input RegisterInput) (*model.AdminRecord, error) {
	username := strings.TrimSpace(input.Username)
	domain := model.NormalizeDomain(input.DomainName)
	role := input.Role
	if role == "" {
		role = model.RoleAdmin
	}
	if role != model.RoleAdmin && role != model.RoleSuperAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if username == "" || (role == model.RoleAdmin && domain == "") {
		return nil, ErrMissingField
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	admin := &model.AdminRecord{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		DomainName:   domain,
		Role:         role,
		Status:       model.StatusPending,
		FeatureList:  []string{PageMain},
		UsersList:    []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if role == model.RoleSuperAdmin {
		admin.Status = model.StatusAccepted
		admin.FeatureList = slices.Clone(model.ValidFeatures)
	}

	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("admin registered", "admin_id", admin.ID, "domain_name", domain, "role", role)
	return admin, nil
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     *model.AdminRecord
}

// Login checks credentials and issues a bearer token.
// Unknown usernames and wrong passwords are indistinguishable.
func (s *AdminService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	admin, err := s.repo.GetAdminByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, model.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, admin.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "admin_id", admin.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !admin.CanLogin() {
		return nil, ErrAdminNotApproved
	}

	token, expires, err := s.tokens.Issue(admin)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expires, Admin: admin}, nil
}

// List returns every admin.
func (s *AdminService) List(ctx context.Context) ([]*model.AdminRecord, error) {
	return s.repo.ListAdmins(ctx)
}

// SetStatus approves or rejects an admin.
func (s *AdminService) SetStatus(ctx context.Context, id, status string) error {
	if !model.ValidStatus(status) {
		return ErrInvalidStatus
	}
	if err := s.repo.UpdateAdminStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info("admin status changed", "admin_id", id, "status", status)
	return nil
}

// SetFeatures replaces the dashboard pages an admin may open.
func (s *AdminService) SetFeatures(ctx context.Context, id string, features []string) error {
	clean := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.ToUpper(strings.TrimSpace(f))
		if !slices.Contains(model.ValidFeatures, f) {
			return fmt.Errorf("%w: %q", ErrInvalidFeature, f)
		}
		if !slices.Contains(clean, f) {
			clean = append(clean, f)
		}
	}
	return s.repo.UpdateAdminFeatures(ctx, id, clean)
}

// Get returns one admin.
func (s *AdminService) Get(ctx context.Context, id string) (*model.AdminRecord, error) {
	return s.repo.GetAdminByID(ctx, id)
}
