package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pulsetrack/pulsetrack/internal/handler/dto"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

// UserCreator stores a new visitor.
type UserCreator interface {
	CreateUser(ctx context.Context, user *model.UserRecord) error
}

// UserHandler mints visitor identities for tracking scripts.
type UserHandler struct {
	repo   UserCreator
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(repo UserCreator, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		repo:   repo,
		logger: logger.With("component", "handler.user"),
	}
}

// Create handles GET /create_user[?domain_name={domain}].
// The id is stored with an empty session list; the first session fills in
// the domain when none was given.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	domain := model.NormalizeDomain(r.URL.Query().Get("domain_name"))
	if domain != "" {
		if err := middleware.ValidateDomainName(domain); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_DOMAIN_NAME", err.Error())
			return
		}
	}

	user := &model.UserRecord{
		ID:         uuid.NewString(),
		DomainName: domain,
		DateJoined: time.Now().UTC(),
		SessionIDs: []string{},
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		h.logger.Error("failed to create user", "error", err, "domain_name", domain)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.CreateUserResponse{UserID: user.ID})
}
