package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"filedrop/internal/server/api"
	"filedrop/internal/server/audit"
	"filedrop/internal/server/config"
	"filedrop/internal/server/logging"
	"filedrop/internal/server/service"
	"filedrop/internal/server/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"require_auth_list", cfg.RequireAuthList,
		"require_auth_static", cfg.RequireAuthStatic,
		"trust_proxy", cfg.TrustProxy,
	)

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		return err
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	passwordHash := cfg.AdminPasswordHash
	if passwordHash == "" {
		passwordHash, err = service.HashPassword(cfg.AdminPassword, bcrypt.DefaultCost)
		if err != nil {
			return err
		}
	}

	recorder := audit.NewRecorder(logger)
	auth, err := service.NewAuthService(cfg.JWTSecret, passwordHash, cfg.TokenTTL, recorder)
	if err != nil {
		return err
	}
	uploads := service.NewUploadService(store, cfg.UploadPolicy(), recorder, cfg.BaseURL)

	e := api.SetupRouter(api.NewHandler(uploads, auth, recorder), cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return storage.NewSweepService(store, cfg.SweepInterval, cfg.TempMaxAge).Run(ctx)
	})

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr, "base_url", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		// Stop accepting new requests and let in-flight uploads finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server exited cleanly")
	return nil
}
