package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"motocadena/backend/internal/config"
	"motocadena/backend/internal/domain"
	"motocadena/backend/internal/httpapi"
	"motocadena/backend/internal/rates"
	"motocadena/backend/internal/service"
	"motocadena/backend/internal/store"
	"motocadena/backend/internal/store/memory"
	pgstore "motocadena/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	if err := bootstrapAdmin(ctx, repo, cfg); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	fallbackRate, err := decimal.NewFromString(cfg.FallbackRate)
	if err != nil || fallbackRate.LessThanOrEqual(decimal.Zero) {
		log.Fatalf("invalid FALLBACK_RATE %q", cfg.FallbackRate)
	}

	var rateSource rates.Source = rates.NewHTTPSource(cfg.RateURL, fallbackRate)
	if cfg.RedisAddr != "" {
		cached := rates.NewCachedSource(rateSource, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, time.Duration(cfg.RateTTLSeconds)*time.Second)
		if err := cached.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), rate cache disabled", err)
			_ = cached.Close()
		} else {
			rateSource = cached
			closers = append(closers, cached.Close)
			log.Println("rate cache: redis")
		}
	} else {
		log.Println("rate cache: disabled")
	}

	svc := service.New(repo, rateSource)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// bootstrapAdmin ensures a login exists before the first request. With an
// empty BOOTSTRAP_ADMIN_PASSWORD nothing is created; the in-memory store
// seeds its own accounts and a provisioned database keeps whatever it has.
func bootstrapAdmin(ctx context.Context, repo store.Repository, cfg config.Config) error {
	if cfg.BootstrapAdminPass == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.BootstrapAdminPass), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	created, err := repo.CreateUser(ctx, domain.UserAccount{
		Username: cfg.BootstrapAdminUser,
		Password: string(hash),
		Role:     "admin",
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		log.Printf("bootstrap admin %q already exists, skipping", cfg.BootstrapAdminUser)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("bootstrap admin %q created", created.Username)
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
