package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/ai"
	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/config"
	httpapi "github.com/zalagh/plancher-backend/internal/http"
	"github.com/zalagh/plancher-backend/internal/knowledge"
	"github.com/zalagh/plancher-backend/internal/observability"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/services"
	"github.com/zalagh/plancher-backend/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context(), *cfg, seed)
			if err != nil {
				return err
			}
			closeDB(db)
			log.Info().Bool("seeded", seed).Msg("migrations completed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "create the configured admins")
	return cmd
}

// openDB connects, migrates, and optionally seeds the admin accounts.
func openDB(ctx context.Context, cfg config.Config, seed bool) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if seed {
		if err := services.SeedAdmins(ctx, db, cfg.Auth.SeedAdminEmails, cfg.Auth.DefaultAdminPassword); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("seed admins: %w", err)
		}
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// buildDeps assembles the request-independent collaborators. The returned
// cleanup releases them in reverse order.
func buildDeps(ctx context.Context, cfg config.Config) (httpapi.Deps, func(), error) {
	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return httpapi.Deps{}, nil, err
	}

	files := storage.New(cfg.Storage)
	if err := files.Ensure(); err != nil {
		closeDB(db)
		return httpapi.Deps{}, nil, fmt.Errorf("storage: %w", err)
	}

	kb, err := knowledge.Default(cfg.AI.KnowledgePath)
	if err != nil {
		// The built-in facts are still indexed.
		log.Warn().Err(err).Str("path", cfg.AI.KnowledgePath).Msg("knowledge file unreadable")
	}

	gen, err := ai.New(ctx, cfg.AI)
	if err != nil {
		closeDB(db)
		return httpapi.Deps{}, nil, fmt.Errorf("ai client: %w", err)
	}
	if _, off := gen.(ai.Unconfigured); off {
		log.Warn().Msg("GEMINI_API_KEY not set; assistant endpoints will fail")
	}

	limiter, closeLimiter := httpapi.NewLimiter(cfg)

	deps := httpapi.Deps{
		DB:        db,
		Tokens:    auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Files:     files,
		Archive:   storage.NewArchiver(ctx, cfg.Archive),
		AI:        gen,
		Knowledge: kb,
		Limiter:   limiter,
	}
	cleanup := func() {
		if err := closeLimiter(); err != nil {
			log.Warn().Err(err).Msg("close rate limiter")
		}
		closeDB(db)
	}
	return deps, cleanup, nil
}

func newServer(cfg config.Config, deps httpapi.Deps) *http.Server {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// serve runs until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := newServer(cfg, deps)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("base_path", cfg.APIBasePath).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
