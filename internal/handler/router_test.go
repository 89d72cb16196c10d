package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsetrack/pulsetrack/internal/analytics"
	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/handler/dto"
	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/presence"
	"github.com/pulsetrack/pulsetrack/internal/service"
	"github.com/pulsetrack/pulsetrack/internal/testutil"
)

type testAPI struct {
	srv      *httptest.Server
	store    *testutil.MemStore
	presence *presence.Registry
	metrics  *metrics.InMemoryRecorder
	admins   *service.AdminService
	ingest   *IngestHandler
}

func newTestAPI(t *testing.T, ingestCfg IngestConfig) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemStore()
	reg := presence.NewRegistry()
	rec := metrics.NewInMemory()

	tokens, err := auth.NewTokenService("router-test-secret", "pulsetrack-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	admins := service.NewAdminService(store, hasher, tokens, logger)
	dashboards := service.NewDashboardService(store, nil, reg, 0, logger, rec)
	pipeline := analytics.NewPipeline(store, logger, rec)
	ingest := NewIngestHandler(pipeline, reg, ingestCfg, logger, rec)

	router := NewRouter(RouterConfig{
		Logger:      logger,
		Root:        New("test"),
		Health:      NewHealthHandler(nil, nil).WithConnections(ingest.OpenConnections),
		Metrics:     NewMetricsHandler(nil),
		Ingest:      ingest,
		Users:       NewUserHandler(store, logger),
		Dashboard:   NewDashboardHandler(dashboards, logger, 5*time.Second),
		Admin:       NewAdminHandler(admins, logger),
		Tokens:      tokens,
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.SecurityConfig{IsDevelopment: true},
		MaxBodySize: 1 << 20,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, store: store, presence: reg, metrics: rec, admins: admins, ingest: ingest}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/v1/admin/login", "", dto.LoginRequest{Username: username, Password: password})
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, code, body)
	}
	var res dto.LoginResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return res.AccessToken
}

func (a *testAPI) dial(t *testing.T, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws/session?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sessionCount(t *testing.T, store *testutil.MemStore, domain string) int64 {
	t.Helper()
	stats, err := store.SessionStats(context.Background(), domain, model.TimeRange{})
	if err != nil {
		t.Fatalf("SessionStats: %v", err)
	}
	return stats.Count
}

const sessionMessage = `{
	"event": "session_end",
	"user_id": "u-1",
	"domain_name": "shop.example",
	"session_start": "2024-03-10T12:00:00Z",
	"session_end": "2024-03-10T12:01:30Z",
	"path_history": ["/", "/pricing"],
	"device_stats": {"deviceType": "desktop", "browser": "Firefox", "os": "Linux"}
}`

func TestIngest_SessionLifecycle(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	conn, _, err := api.dial(t, "domain_name=Shop.Example&user_id=u-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, "presence connect", func() bool { return api.presence.ActiveCount("shop.example") == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"path_history": "not-a-list"}`)); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sessionMessage)); err != nil {
		t.Fatalf("write event: %v", err)
	}
	waitFor(t, "session stored", func() bool { return sessionCount(t, api.store, "shop.example") == 1 })

	snap := api.metrics.Snapshot()
	if snap.Events[metrics.EventMalformed] != 1 {
		t.Errorf("malformed events = %d, want 1", snap.Events[metrics.EventMalformed])
	}
	if snap.Connections[metrics.ConnAccepted] != 1 {
		t.Errorf("accepted connections = %d, want 1", snap.Connections[metrics.ConnAccepted])
	}

	code, body := api.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || !strings.Contains(string(body), `"connections":1`) {
		t.Errorf("healthz = %d %s, want one connection", code, body)
	}

	conn.Close()
	waitFor(t, "presence cleanup", func() bool { return api.presence.ActiveCount("shop.example") == 0 })
	waitFor(t, "connection untracked", func() bool { return api.ingest.OpenConnections() == 0 })
}

func TestIngest_BinaryFrameClosesConnection(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	conn, _, err := api.dial(t, "domain_name=shop.example&user_id=u-2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Fatalf("read error = %v, want close 1003", err)
	}
	waitFor(t, "presence cleanup", func() bool { return api.presence.ActiveCount("shop.example") == 0 })
}

func TestIngest_RejectsBadParameters(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"missing domain", "user_id=u-1", "INVALID_DOMAIN_NAME"},
		{"missing user", "domain_name=shop.example", "INVALID_USER_ID"},
		{"bad user id", "domain_name=shop.example&user_id=a%20b", "INVALID_USER_ID"},
		{"bad domain", "domain_name=shop_example!&user_id=u-1", "INVALID_DOMAIN_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodGet, "/ws/session?"+tt.query, "", nil)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if !strings.Contains(string(body), tt.code) {
				t.Errorf("body = %s, want %s", body, tt.code)
			}
		})
	}

	if got := api.metrics.Snapshot().Connections[metrics.ConnRejected]; got != uint64(len(tests)) {
		t.Errorf("rejected connections = %d, want %d", got, len(tests))
	}
}

func TestIngest_CheckOrigin(t *testing.T) {
	t.Parallel()
	cfg := DefaultIngestConfig()
	cfg.CheckOrigin = true
	api := newTestAPI(t, cfg)

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"same host", "https://shop.example", true},
		{"subdomain", "https://www.shop.example", true},
		{"no origin header", "", true},
		{"foreign site", "https://evil.example", false},
		{"suffix lookalike", "https://badshop.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := api.dial(t, "domain_name=shop.example&user_id=u-3", header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				t.Fatal("dial succeeded, want handshake failure")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("response = %v, want 403", resp)
			}
		})
	}
}

func TestIngest_ShutdownClosesConnections(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	conn, _, err := api.dial(t, "domain_name=shop.example&user_id=u-4", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, "connection tracked", func() bool { return api.ingest.OpenConnections() == 1 })

	api.ingest.Shutdown()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read error = %v, want close 1001", err)
	}
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	code, body := api.do(t, http.MethodGet, "/create_user?domain_name=https://Shop.Example/", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d: %s", code, body)
	}
	var res dto.CreateUserResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	user, err := api.store.GetUser(context.Background(), res.UserID)
	if err != nil {
		t.Fatalf("GetUser(%s): %v", res.UserID, err)
	}
	if user.DomainName != "shop.example" || len(user.SessionIDs) != 0 {
		t.Errorf("user = %+v", user)
	}
}

func TestAdminFlow(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())
	ctx := context.Background()

	if _, err := api.admins.Register(ctx, service.RegisterInput{Username: "root", Password: "root-password", Role: model.RoleSuperAdmin}); err != nil {
		t.Fatalf("register superadmin: %v", err)
	}
	rootToken := api.login(t, "root", "root-password")

	// Self-registration starts pending.
	code, body := api.do(t, http.MethodPost, "/api/v1/admin/register", "", dto.RegisterRequest{
		Username: "owner", Password: "owner-password", DomainName: "https://Shop.Example",
	})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %s", code, body)
	}
	var owner dto.AdminResponse
	if err := json.Unmarshal(body, &owner); err != nil {
		t.Fatalf("decode admin: %v", err)
	}
	if owner.Status != model.StatusPending || owner.DomainName != "shop.example" || owner.Role != model.RoleAdmin {
		t.Errorf("registered admin = %+v", owner)
	}

	code, _ = api.do(t, http.MethodPost, "/api/v1/admin/register", "", dto.RegisterRequest{
		Username: "other", Password: "other-password", DomainName: "shop.example",
	})
	if code != http.StatusConflict {
		t.Errorf("duplicate domain: status %d, want 409", code)
	}

	code, body = api.do(t, http.MethodPost, "/api/v1/admin/login", "", dto.LoginRequest{Username: "owner", Password: "owner-password"})
	if code != http.StatusForbidden || !strings.Contains(string(body), "NOT_APPROVED") {
		t.Errorf("pending login: %d %s", code, body)
	}
	code, _ = api.do(t, http.MethodPost, "/api/v1/admin/login", "", dto.LoginRequest{Username: "owner", Password: "wrong-password"})
	if code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", code)
	}

	ownerToken := ""
	t.Run("only superadmin manages admins", func(t *testing.T) {
		code, _ := api.do(t, http.MethodPatch, "/api/v1/admin/"+owner.ID+"/status", rootToken, dto.StatusRequest{Status: "accepted"})
		if code != http.StatusNoContent {
			t.Fatalf("approve: status %d", code)
		}
		ownerToken = api.login(t, "owner", "owner-password")

		code, _ = api.do(t, http.MethodGet, "/api/v1/admin", ownerToken, nil)
		if code != http.StatusForbidden {
			t.Errorf("admin listing admins: status %d, want 403", code)
		}
		code, body := api.do(t, http.MethodGet, "/api/v1/admin", rootToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"total":2`) {
			t.Errorf("list: %d %s", code, body)
		}
		code, _ = api.do(t, http.MethodPatch, "/api/v1/admin/missing/status", rootToken, dto.StatusRequest{Status: "ACCEPTED"})
		if code != http.StatusNotFound {
			t.Errorf("unknown admin: status %d, want 404", code)
		}
		code, _ = api.do(t, http.MethodPatch, "/api/v1/admin/"+owner.ID+"/status", rootToken, dto.StatusRequest{Status: "MAYBE"})
		if code != http.StatusBadRequest {
			t.Errorf("bad status: status %d, want 400", code)
		}
	})

	t.Run("features gate dashboard pages", func(t *testing.T) {
		code, _ := api.do(t, http.MethodGet, "/api/v1/dashboard", ownerToken, nil)
		if code != http.StatusOK {
			t.Errorf("main dashboard: status %d", code)
		}
		code, _ = api.do(t, http.MethodGet, "/api/v1/dashboard/devices", ownerToken, nil)
		if code != http.StatusForbidden {
			t.Errorf("devices without feature: status %d, want 403", code)
		}

		code, _ = api.do(t, http.MethodPut, "/api/v1/admin/"+owner.ID+"/features", rootToken, dto.FeaturesRequest{Features: []string{"main", "devices"}})
		if code != http.StatusNoContent {
			t.Fatalf("set features: status %d", code)
		}
		refreshed := api.login(t, "owner", "owner-password")
		code, _ = api.do(t, http.MethodGet, "/api/v1/dashboard/devices", refreshed, nil)
		if code != http.StatusOK {
			t.Errorf("devices with feature: status %d", code)
		}

		code, _ = api.do(t, http.MethodPut, "/api/v1/admin/"+owner.ID+"/features", rootToken, dto.FeaturesRequest{Features: []string{"BILLING"}})
		if code != http.StatusBadRequest {
			t.Errorf("unknown feature: status %d, want 400", code)
		}
	})

	t.Run("me", func(t *testing.T) {
		code, body := api.do(t, http.MethodGet, "/api/v1/admin/me", ownerToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"username":"owner"`) {
			t.Errorf("me: %d %s", code, body)
		}
		if strings.Contains(string(body), "password") {
			t.Error("admin response leaks the password hash")
		}
	})
}

func TestDashboardEndpoints(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())
	ctx := context.Background()

	if _, err := api.admins.Register(ctx, service.RegisterInput{Username: "root", Password: "root-password", Role: model.RoleSuperAdmin}); err != nil {
		t.Fatalf("register superadmin: %v", err)
	}
	owner, err := api.admins.Register(ctx, service.RegisterInput{Username: "owner", Password: "owner-password", DomainName: "shop.example"})
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}
	if err := api.admins.SetStatus(ctx, owner.ID, model.StatusAccepted); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := api.admins.SetFeatures(ctx, owner.ID, model.ValidFeatures); err != nil {
		t.Fatalf("features: %v", err)
	}
	ownerToken := api.login(t, "owner", "owner-password")
	rootToken := api.login(t, "root", "root-password")

	conn, _, err := api.dial(t, "domain_name=shop.example&user_id=u-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sessionMessage)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, "session stored", func() bool { return sessionCount(t, api.store, "shop.example") == 1 })

	t.Run("main", func(t *testing.T) {
		code, body := api.do(t, http.MethodGet, "/api/v1/dashboard?page_name=MAIN", ownerToken, nil)
		if code != http.StatusOK {
			t.Fatalf("status %d: %s", code, body)
		}
		var d model.MainDashboard
		if err := json.Unmarshal(body, &d); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if d.DomainName != "shop.example" || d.TotalVisits != 1 || d.ActiveUsers != 1 {
			t.Errorf("dashboard = %+v", d)
		}
		if d.AvgSessionTime != "0 hours, 1 minutes, 30 seconds" {
			t.Errorf("avg session time = %q", d.AvgSessionTime)
		}
		if d.PageViewAnalysis["/pricing"] != 1 {
			t.Errorf("page views = %v", d.PageViewAnalysis)
		}
	})

	t.Run("unknown page", func(t *testing.T) {
		code, _ := api.do(t, http.MethodGet, "/api/v1/dashboard?page_name=BILLING", ownerToken, nil)
		if code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", code)
		}
	})

	t.Run("breakdowns", func(t *testing.T) {
		for _, path := range []string{"/pages", "/bounces", "/devices", "/content", "/sessions", "/trends", "/active"} {
			code, body := api.do(t, http.MethodGet, "/api/v1/dashboard"+path, ownerToken, nil)
			if code != http.StatusOK {
				t.Errorf("%s: status %d: %s", path, code, body)
			}
		}
		code, body := api.do(t, http.MethodGet, "/api/v1/dashboard/devices", ownerToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"Firefox":1`) {
			t.Errorf("devices: %s", body)
		}
	})

	t.Run("query validation", func(t *testing.T) {
		cases := []struct {
			path string
			want int
		}{
			{"/api/v1/dashboard/content?type=PODCAST", http.StatusBadRequest},
			{"/api/v1/dashboard/sessions?from=yesterday", http.StatusBadRequest},
			{"/api/v1/dashboard/sessions?from=2024-04-01T00:00:00Z&to=2024-03-01T00:00:00Z", http.StatusBadRequest},
			{"/api/v1/users/top?limit=many", http.StatusBadRequest},
			{"/api/v1/users/u-1/sessions?year=2024&month=13", http.StatusBadRequest},
			{"/api/v1/users/u-1/sessions?month=3", http.StatusBadRequest},
			{"/api/v1/users/nobody/sessions", http.StatusNotFound},
		}
		for _, c := range cases {
			if code, body := api.do(t, http.MethodGet, c.path, ownerToken, nil); code != c.want {
				t.Errorf("%s: status %d, want %d: %s", c.path, code, c.want, body)
			}
		}
	})

	t.Run("users", func(t *testing.T) {
		code, body := api.do(t, http.MethodGet, "/api/v1/users/top", ownerToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"session_count":1`) {
			t.Errorf("top users: %d %s", code, body)
		}
		code, body = api.do(t, http.MethodGet, "/api/v1/users/u-1/sessions?year=2024&month=3", ownerToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"total":1`) {
			t.Errorf("user sessions: %d %s", code, body)
		}
	})

	t.Run("domain scoping", func(t *testing.T) {
		code, _ := api.do(t, http.MethodGet, "/api/v1/dashboard?domain_name=other.example", ownerToken, nil)
		if code != http.StatusForbidden {
			t.Errorf("admin reading other domain: status %d, want 403", code)
		}
		code, _ = api.do(t, http.MethodGet, "/api/v1/dashboard", rootToken, nil)
		if code != http.StatusBadRequest {
			t.Errorf("superadmin without domain: status %d, want 400", code)
		}
		code, body := api.do(t, http.MethodGet, "/api/v1/dashboard?domain_name=shop.example", rootToken, nil)
		if code != http.StatusOK || !strings.Contains(string(body), `"total_visits":1`) {
			t.Errorf("superadmin with domain: %d %s", code, body)
		}
	})

	t.Run("requires token", func(t *testing.T) {
		code, _ := api.do(t, http.MethodGet, "/api/v1/dashboard", "", nil)
		if code != http.StatusUnauthorized {
			t.Errorf("status %d, want 401", code)
		}
		code, _ = api.do(t, http.MethodGet, "/api/v1/dashboard", "not-a-jwt", nil)
		if code != http.StatusUnauthorized {
			t.Errorf("forged token: status %d, want 401", code)
		}
	})
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DefaultIngestConfig())

	req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/api/v1/dashboard", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://dash.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	// No origins are configured, so the preflight is refused before auth runs.
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}
