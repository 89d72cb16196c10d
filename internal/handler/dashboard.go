package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsetrack/pulsetrack/internal/handler/dto"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/service"
)

// DashboardReader is the read side used by the dashboard endpoints.
type DashboardReader interface {
	Page(ctx context.Context, domainName, page string) (*model.MainDashboard, error)
	Trends(ctx context.Context, domainName string) (model.Trends, error)
	Pages(ctx context.Context, domainName string) (map[string]int64, error)
	Bounces(ctx context.Context, domainName string) (*model.BounceBreakdown, error)
	Devices(ctx context.Context, domainName string) (*model.DeviceBreakdown, error)
	Content(ctx context.Context, domainName string, typ model.ContentType) ([]model.ContentMetricView, error)
	Sessions(ctx context.Context, domainName string, r model.TimeRange, limit int) ([]*model.SessionRecord, error)
	TopUsers(ctx context.Context, domainName string, limit int) ([]model.UserSummary, error)
	UserSessions(ctx context.Context, domainName, userID string, year, month int) ([]*model.SessionRecord, error)
	ActiveUsers(domainName string) []string
}

// DashboardHandler serves the per-domain dashboard pages.
type DashboardHandler struct {
	svc     DashboardReader
	logger  *slog.Logger
	timeout time.Duration
}

// NewDashboardHandler creates a DashboardHandler. timeout bounds each query.
func NewDashboardHandler(svc DashboardReader, logger *slog.Logger, timeout time.Duration) *DashboardHandler {
	return &DashboardHandler{
		svc:     svc,
		logger:  logger.With("component", "handler.dashboard"),
		timeout: timeout,
	}
}

func (h *DashboardHandler) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// Main handles GET /api/v1/dashboard?page_name=MAIN.
func (h *DashboardHandler) Main(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	page := r.URL.Query().Get("page_name")
	if page == "" {
		page = service.PageMain
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	d, err := h.svc.Page(ctx, domain, page)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Trends handles GET /api/v1/dashboard/trends.
func (h *DashboardHandler) Trends(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	trends, err := h.svc.Trends(ctx, domain)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

// Pages handles GET /api/v1/dashboard/pages.
func (h *DashboardHandler) Pages(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	pages, err := h.svc.Pages(ctx, domain)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page_counts": pages})
}

// Bounces handles GET /api/v1/dashboard/bounces.
func (h *DashboardHandler) Bounces(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	b, err := h.svc.Bounces(ctx, domain)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Devices handles GET /api/v1/dashboard/devices.
func (h *DashboardHandler) Devices(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	d, err := h.svc.Devices(ctx, domain)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Content handles GET /api/v1/dashboard/content?type={VIDEO|BUTTON|CONTENT}.
func (h *DashboardHandler) Content(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	typ := model.ContentType(r.URL.Query().Get("type"))
	list, err := h.svc.Content(ctx, domain, typ)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(list))
}

// Sessions handles GET /api/v1/dashboard/sessions?from&to&limit.
// from and to are RFC 3339 timestamps.
func (h *DashboardHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var span model.TimeRange
	query := r.URL.Query()
	if v := query.Get("from"); v != "" {
		if span.From, err = time.Parse(time.RFC3339, v); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_FROM", "from must be an RFC 3339 timestamp")
			return
		}
	}
	if v := query.Get("to"); v != "" {
		if span.To, err = time.Parse(time.RFC3339, v); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "INVALID_TO", "to must be an RFC 3339 timestamp")
			return
		}
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	sessions, err := h.svc.Sessions(ctx, domain, span, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(sessions))
}

// Active handles GET /api/v1/dashboard/active.
func (h *DashboardHandler) Active(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	users := h.svc.ActiveUsers(domain)
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, dto.ActiveUsersResponse{
		DomainName:  domain,
		ActiveUsers: len(users),
		UserIDs:     users,
	})
}

// TopUsers handles GET /api/v1/users/top?limit.
func (h *DashboardHandler) TopUsers(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	users, err := h.svc.TopUsers(ctx, domain, limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(users))
}

// UserSessions handles GET /api/v1/users/{id}/sessions?year&month.
func (h *DashboardHandler) UserSessions(w http.ResponseWriter, r *http.Request) {
	domain, err := requestDomain(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	year, err := queryInt(r, "year")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_YEAR", "year must be an integer")
		return
	}
	month, err := queryInt(r, "month")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_MONTH", "month must be an integer")
		return
	}

	ctx, cancel := h.queryContext(r)
	defer cancel()

	sessions, err := h.svc.UserSessions(ctx, domain, chi.URLParam(r, "id"), year, month)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(sessions))
}

// handleServiceError maps service errors to HTTP responses.
func (h *DashboardHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownPage):
		writeErrorJSON(w, http.StatusBadRequest, "UNKNOWN_PAGE", "Unknown dashboard page")
	case errors.Is(err, service.ErrInvalidContentType):
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", "type must be VIDEO, BUTTON or CONTENT")
	case errors.Is(err, service.ErrInvalidMonth), errors.Is(err, service.ErrMonthWithoutYear):
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_MONTH", err.Error())
	case errors.Is(err, service.ErrInvalidTimeSpan):
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_TIME_SPAN", err.Error())
	case errors.Is(err, model.ErrUserNotFound):
		writeErrorJSON(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("dashboard query timed out", "path", r.URL.Path, "error", err)
		writeErrorJSON(w, http.StatusGatewayTimeout, "TIMEOUT", "Dashboard query timed out")
	default:
		h.logger.Error("internal_error", "path", r.URL.Path, "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
