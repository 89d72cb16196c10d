package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/testutil"
)

func newTestAdminService(t *testing.T) (*AdminService, *testutil.MemStore, *auth.TokenService) {
	t.Helper()
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	tokens, err := auth.NewTokenService("test-secret", "pulsetrack-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	store := testutil.NewMemStore()
	return NewAdminService(store, hasher, tokens, discardLogger()), store, tokens
}

func TestAdminService_Register(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAdminService(t)
	admin, err := svc.Register(context.Background(), RegisterInput{
		Username:   "alice",
		Password:   "correct horse",
		DomainName: "https://Shop.Example/home",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if admin.Status != model.StatusPending || admin.Role != model.RoleAdmin {
		t.Errorf("status=%s role=%s", admin.Status, admin.Role)
	}
	if admin.DomainName != "shop.example" {
		t.Errorf("DomainName = %q", admin.DomainName)
	}
	if !slices.Equal(admin.FeatureList, []string{PageMain}) {
		t.Errorf("FeatureList = %v", admin.FeatureList)
	}
	if admin.PasswordHash == "" || admin.PasswordHash == "correct horse" {
		t.Error("password was not hashed")
	}
}

func TestAdminService_RegisterValidation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAdminService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterInput{Username: "bob", Password: "long enough", DomainName: "a.example"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"missing domain", RegisterInput{Username: "carol", Password: "long enough"}, ErrMissingField},
		{"missing username", RegisterInput{Password: "long enough", DomainName: "c.example"}, ErrMissingField},
		{"short password", RegisterInput{Username: "carol", Password: "short", DomainName: "c.example"}, ErrWeakPassword},
		{"duplicate username", RegisterInput{Username: "bob", Password: "long enough", DomainName: "b.example"}, model.ErrUsernameExists},
		{"claimed domain", RegisterInput{Username: "dave", Password: "long enough", DomainName: "A.example"}, model.ErrDomainClaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.input); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := svc.Register(ctx, RegisterInput{Username: "eve", Password: "long enough", DomainName: "e.example", Role: "OWNER"}); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestAdminService_SuperAdmin(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestAdminService(t)
	ctx := context.Background()
	admin, err := svc.Register(ctx, RegisterInput{Username: "root", Password: "long enough", Role: model.RoleSuperAdmin})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if admin.Status != model.StatusAccepted || len(admin.FeatureList) != len(model.ValidFeatures) {
		t.Errorf("superadmin = %+v", admin)
	}

	res, err := svc.Login(ctx, "root", "long enough")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	authCtx, err := tokens.Validate(res.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !authCtx.IsSuperAdmin() {
		t.Error("token lost the superadmin role")
	}
}

func TestAdminService_LoginRequiresApproval(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newTestAdminService(t)
	ctx := context.Background()
	admin, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "correct horse", DomainName: "shop.example"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, "alice", "correct horse"); !errors.Is(err, ErrAdminNotApproved) {
		t.Fatalf("pending Login() error = %v, want ErrAdminNotApproved", err)
	}

	if err := svc.SetStatus(ctx, admin.ID, model.StatusAccepted); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetFeatures(ctx, admin.ID, []string{"main", " devices ", "MAIN"}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Login(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	authCtx, err := tokens.Validate(res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if authCtx.DomainName != "shop.example" || !slices.Equal(authCtx.Features, []string{"MAIN", "DEVICES"}) {
		t.Errorf("auth context = %+v", authCtx)
	}
	if !res.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v", res.ExpiresAt)
	}
}

func TestAdminService_LoginFailures(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAdminService(t)
	ctx := context.Background()
	admin, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "correct horse", DomainName: "shop.example"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SetStatus(ctx, admin.ID, model.StatusAccepted); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := svc.Login(ctx, "mallory", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}

	if err := svc.SetStatus(ctx, admin.ID, model.StatusRejected); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "alice", "correct horse"); !errors.Is(err, ErrAdminNotApproved) {
		t.Errorf("rejected Login() error = %v", err)
	}
}

func TestAdminService_InvalidUpdates(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAdminService(t)
	ctx := context.Background()

	if err := svc.SetStatus(ctx, "any", "MAYBE"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("SetStatus() error = %v", err)
	}
	if err := svc.SetStatus(ctx, "missing", model.StatusAccepted); !errors.Is(err, model.ErrAdminNotFound) {
		t.Errorf("SetStatus(missing) error = %v", err)
	}
	if err := svc.SetFeatures(ctx, "any", []string{"MAIN", "BILLING"}); !errors.Is(err, ErrInvalidFeature) {
		t.Errorf("SetFeatures() error = %v", err)
	}
}
