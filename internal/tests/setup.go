// Package tests holds integration and end-to-end tests that run against a real PostgreSQL database.
// They skip unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luckyshop/server/internal/auth"
	"github.com/luckyshop/server/internal/config"
	"github.com/luckyshop/server/internal/db"
	httphandler "github.com/luckyshop/server/internal/http"
	"github.com/luckyshop/server/internal/http/handlers"
	"github.com/luckyshop/server/internal/middleware"
	"github.com/luckyshop/server/internal/repo"
)

// TruncateAuthTables truncates auth-related tables for a clean test state and switches maintenance off.
func TruncateAuthTables(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE otp_challenges, users RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	if _, err := db.ExecContext(ctx, "UPDATE settings SET value = 'false' WHERE key = 'maintenance'"); err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	return nil
}

// openTestDB opens DATABASE_URL and migrates it, skipping the test when it is unset
func openTestDB(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("config not loadable (DATABASE_URL unset?): %v", err)
	}

	database, err := db.Open(context.Background(), cfg.DatabaseURL, db.DefaultPool)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database), "migrations must run successfully")
	require.NoError(t, TruncateAuthTables(context.Background(), database))
	return database, cfg
}

// testServer holds the server and DB for end-to-end tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, cfg := openTestDB(t)

	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)

	hasher := auth.NewHasher(4)
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	otpService := auth.NewOtpService(otpRepo, userRepo, hasher, auth.LogSender{DevMode: true}, auth.OtpConfig{DevMode: true})
	authService := auth.NewAuthService(userRepo, otpRepo, tokens, hasher, auth.AuthConfig{})

	cookies := middleware.CookieConfig{}
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:           handlers.NewAuthHandler(otpService, authService, cookies),
		Authenticator:  authService,
		Cookies:        cookies,
		Settings:       repo.NewSettingRepo(database),
		AllowedOrigins: cfg.CORSOrigins,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

// Client returns a client with its own cookie jar, i.e. one browser
func (s *testServer) Client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Transport: s.Server.Client().Transport, Jar: jar}
}

func (s *testServer) TruncateAuth(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateAuthTables(context.Background(), s.DB), "truncate auth tables")
}
