// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/handler/dto"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

var (
	errNoAuth          = errors.New("authentication required")
	errDomainForbidden = errors.New("domain_name query parameter is reserved for superadmins")
)

// Handler serves the service banner and router fallbacks.
type Handler struct {
	version string
}

// New creates a new Handler instance.
func New(version string) *Handler {
	return &Handler{version: version}
}

// Root reports the service name and version.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "pulsetrack",
		"version": h.version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErrorJSON writes a JSON error response.
func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// requestDomain returns the domain a dashboard request is about. Admins are
// bound to the domain in their token; a superadmin names one with ?domain_name.
func requestDomain(r *http.Request) (string, error) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		return "", errNoAuth
	}

	requested := model.NormalizeDomain(r.URL.Query().Get("domain_name"))
	if !authCtx.IsSuperAdmin() {
		if requested != "" && requested != authCtx.DomainName {
			return "", errDomainForbidden
		}
		return authCtx.DomainName, nil
	}

	if err := middleware.ValidateDomainName(requested); err != nil {
		return "", err
	}
	return requested, nil
}

// writeDomainError maps requestDomain failures.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoAuth):
		writeErrorJSON(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, errDomainForbidden):
		writeErrorJSON(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_DOMAIN_NAME", err.Error())
	}
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
