package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/handler/dto"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/service"
)

// AdminManager is the admin identity service.
type AdminManager interface {
	Register(ctx context.Context, input service.RegisterInput) (*model.AdminRecord, error)
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Get(ctx context.Context, id string) (*model.AdminRecord, error)
	List(ctx context.Context) ([]*model.AdminRecord, error)
	SetStatus(ctx context.Context, id, status string) error
	SetFeatures(ctx context.Context, id string, features []string) error
}

// AdminHandler serves registration, login and superadmin management.
type AdminHandler struct {
	svc    AdminManager
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc AdminManager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger.With("component", "handler.admin"),
	}
}

// Register handles POST /api/v1/admin/register.
// Accounts created here are ADMINs awaiting approval.
func (h *AdminHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := middleware.ValidateUsername(req.Username); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_USERNAME", err.Error())
		return
	}
	if domain := model.NormalizeDomain(req.DomainName); domain != "" {
		if err := middleware.ValidateDomainName(domain); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_DOMAIN_NAME", err.Error())
			return
		}
	}

	admin, err := h.svc.Register(r.Context(), service.RegisterInput{
		Username:   req.Username,
		Password:   req.Password,
		DomainName: req.DomainName,
		Role:       model.RoleAdmin,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToAdminResponse(admin))
}

// Login handles POST /api/v1/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Warn("login failed",
				"username_prefix", truncateForLog(req.Username, 3),
				"request_id", middleware.GetRequestID(r.Context()),
			)
		}
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		Admin:       dto.ToAdminResponse(res.Admin),
	})
}

// Me handles GET /api/v1/admin/me.
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	adminID := auth.AdminIDFromContext(r.Context())
	if adminID == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}
	admin, err := h.svc.Get(r.Context(), adminID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAdminResponse(admin))
}

// List handles GET /api/v1/admin.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.svc.List(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAdminListResponse(admins))
}

// SetStatus handles PATCH /api/v1/admin/{id}/status.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.SetStatus(r.Context(), id, strings.ToUpper(strings.TrimSpace(req.Status))); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.logger.Info("admin_status_updated",
		"admin_id", id,
		"by", auth.AdminIDFromContext(r.Context()),
	)
	w.WriteHeader(http.StatusNoContent)
}

// SetFeatures handles PUT /api/v1/admin/{id}/features.
func (h *AdminHandler) SetFeatures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.FeaturesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.svc.SetFeatures(r.Context(), id, req.Features); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.logger.Info("admin_features_updated",
		"admin_id", id,
		"by", auth.AdminIDFromContext(r.Context()),
	)
	w.WriteHeader(http.StatusNoContent)
}

// handleServiceError maps service errors to HTTP responses.
func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorJSON(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
	case errors.Is(err, service.ErrAdminNotApproved):
		writeErrorJSON(w, http.StatusForbidden, "NOT_APPROVED", "Account is awaiting approval")
	case errors.Is(err, service.ErrMissingField):
		writeErrorJSON(w, http.StatusBadRequest, "MISSING_FIELD", err.Error())
	case errors.Is(err, service.ErrWeakPassword):
		writeErrorJSON(w, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
	case errors.Is(err, service.ErrInvalidStatus):
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_STATUS", "status must be PENDING, ACCEPTED or REJECTED")
	case errors.Is(err, service.ErrInvalidFeature):
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_FEATURE", err.Error())
	case errors.Is(err, model.ErrUsernameExists):
		writeErrorJSON(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists")
	case errors.Is(err, model.ErrDomainClaimed):
		writeErrorJSON(w, http.StatusConflict, "DOMAIN_CLAIMED", "Domain already has an admin")
	case errors.Is(err, model.ErrAdminNotFound):
		writeErrorJSON(w, http.StatusNotFound, "ADMIN_NOT_FOUND", "Admin not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
