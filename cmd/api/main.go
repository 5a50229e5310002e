package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/luckyshop/server/internal/auth"
	"github.com/luckyshop/server/internal/config"
	"github.com/luckyshop/server/internal/db"
	httphandler "github.com/luckyshop/server/internal/http"
	"github.com/luckyshop/server/internal/http/handlers"
	"github.com/luckyshop/server/internal/middleware"
	"github.com/luckyshop/server/internal/repo"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	settingRepo := repo.NewSettingRepo(database)

	// Initialize auth services
	hasher := auth.NewHasher(cfg.BcryptCost)
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	otpService := auth.NewOtpService(otpRepo, userRepo, hasher, auth.LogSender{DevMode: cfg.OTPDevMode}, auth.OtpConfig{
		DevMode:  cfg.OTPDevMode,
		Location: loc,
	})
	authService := auth.NewAuthService(userRepo, otpRepo, tokens, hasher, auth.AuthConfig{Location: loc})
	if cfg.OTPDevMode {
		log.Println("OTP dev mode enabled: every code is 123123")
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	cookies := middleware.CookieConfig{Production: cfg.Production()}
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:           handlers.NewAuthHandler(otpService, authService, cookies),
		Authenticator:  authService,
		Cookies:        cookies,
		Settings:       settingRepo,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSOrigins,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s (%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newLimiter returns the per-IP limiter for the public auth routes: Redis-backed when REDIS_ADDR is set so
// replicas share one budget, in-memory otherwise
func newLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func()) {
	if cfg.RedisAddr == "" {
		l := middleware.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
		return l, l.Stop
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("[redis] ping %s failed, limiter will fail open until it recovers: %v", cfg.RedisAddr, err)
	} else {
		log.Printf("[redis] connected to %s", cfg.RedisAddr)
	}
	return middleware.NewRedisLimiter(client, "luckyshop:ratelimit", cfg.RateLimitWindow, cfg.RateLimitMax), func() {
		_ = client.Close()
	}
}
