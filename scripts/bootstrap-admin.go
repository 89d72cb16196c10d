package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/model"
	"github.com/pulsetrack/pulsetrack/internal/repository"
	"github.com/pulsetrack/pulsetrack/internal/service"
)

type output struct {
	AdminID  string `json:"admin_id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "root", "Super admin username")
		password    = flag.String("password", os.Getenv("BOOTSTRAP_PASSWORD"), "Super admin password (generated when empty)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	generated := false
	if *password == "" {
		p, err := randomPassword()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate password:", err)
			os.Exit(1)
		}
		*password = p
		generated = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, 2)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admins := service.NewAdminService(repo, auth.NewPasswordHasher(auth.DefaultArgon2Params), nil, logger)

	admin, err := admins.Register(ctx, service.RegisterInput{
		Username: *username,
		Password: *password,
		Role:     model.RoleSuperAdmin,
	})
	if errors.Is(err, model.ErrUsernameExists) {
		fmt.Fprintf(os.Stderr, "admin %q already exists\n", *username)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "create admin:", err)
		os.Exit(1)
	}

	out := output{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}
	if generated {
		out.Password = *password
	}

	switch strings.ToLower(*format) {
	case "plain":
		if generated {
			fmt.Println(out.Password)
		} else {
			fmt.Println(out.AdminID)
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
