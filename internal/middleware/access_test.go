package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/model"
)

func serveWithAuth(mw func(http.Handler) http.Handler, authCtx *model.AuthContext) *httptest.ResponseRecorder {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	if authCtx != nil {
		req = req.WithContext(auth.ContextWithAuth(req.Context(), authCtx))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireFeature(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		authCtx    *model.AuthContext
		feature    string
		wantStatus int
	}{
		{
			name:       "feature granted",
			authCtx:    &model.AuthContext{Role: model.RoleAdmin, Features: []string{"MAIN", "PAGES"}},
			feature:    "PAGES",
			wantStatus: http.StatusOK,
		},
		{
			name:       "feature missing",
			authCtx:    &model.AuthContext{Role: model.RoleAdmin, Features: []string{"MAIN"}},
			feature:    "USERS",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "empty feature list",
			authCtx:    &model.AuthContext{Role: model.RoleAdmin},
			feature:    "MAIN",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "superadmin passes every feature",
			authCtx:    &model.AuthContext{Role: model.RoleSuperAdmin},
			feature:    "TRENDS",
			wantStatus: http.StatusOK,
		},
		{
			name:       "no auth context",
			authCtx:    nil,
			feature:    "MAIN",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := serveWithAuth(RequireFeature(tc.feature), tc.authCtx)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK && rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		authCtx    *model.AuthContext
		wantStatus int
	}{
		{"superadmin", &model.AuthContext{Role: model.RoleSuperAdmin}, http.StatusOK},
		{"admin with every feature", &model.AuthContext{Role: model.RoleAdmin, Features: model.ValidFeatures}, http.StatusForbidden},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := serveWithAuth(RequireSuperAdmin(), tc.authCtx)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
