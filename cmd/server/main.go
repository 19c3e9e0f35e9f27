// Package main is the entrypoint for the InsightGate API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/internal/api"
	"github.com/kiranshivaraju/insightgate/internal/api/handler"
	mw "github.com/kiranshivaraju/insightgate/internal/api/middleware"
	"github.com/kiranshivaraju/insightgate/internal/api/response"
	"github.com/kiranshivaraju/insightgate/internal/cache"
	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/internal/pipeline"
	"github.com/kiranshivaraju/insightgate/internal/report"
	"github.com/kiranshivaraju/insightgate/internal/store"
	"github.com/kiranshivaraju/insightgate/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

const (
	shutdownTimeout = 30 * time.Second
	keyPrefixLen    = 8
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config: fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"pipeline_enabled", cfg.Pipeline.BaseURL != "",
		"min_confidence", cfg.Governance.MinConfidence,
		"fail_safe_confidence", cfg.Governance.FailSafeConfidence,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and install the bootstrap key
	pgStore := store.NewPostgresStore(pool)

	if err := bootstrapAdminKey(ctx, pgStore, cfg.Server.BootstrapAdminKey); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 6. Pipeline client, optional
	var pc pipeline.Client
	if cfg.Pipeline.BaseURL != "" {
		pc = pipeline.NewHTTPClient(cfg.Pipeline.BaseURL, cfg.Pipeline.Token, cfg.Pipeline.Timeout)
		slog.Info("pipeline client initialized", "base_url", cfg.Pipeline.BaseURL)
	}

	svc := report.NewService(pgStore, redisCache, pc, cfg.Governance, cfg.Server.ArtifactCacheTTL)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache, pc),
		MetricsHandler: promhttp.Handler(),

		IngestRunHandler:  handler.NewIngestRunHandler(svc),
		ListRunsHandler:   handler.NewListRunsHandler(svc),
		ReportHandler:     handler.NewReportHandler(svc),
		AuditHandler:      handler.NewAuditHandler(svc),
		AuditTrailHandler: handler.NewAuditTrailHandler(svc),
		QuestionHandler:   handler.NewQuestionHandler(svc),
		SimulateHandler:   handler.NewSimulateHandler(svc),
		EvidenceHandler:   handler.NewEvidenceHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// bootstrapAdminKey installs rawKey as an admin key of the default tenant
// unless an identical key is already active. An empty rawKey is a no-op.
func bootstrapAdminKey(ctx context.Context, s store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}
	if len(rawKey) < keyPrefixLen {
		return fmt.Errorf("key shorter than %d characters", keyPrefixLen)
	}
	prefix := rawKey[:keyPrefixLen]

	existing, err := s.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range existing {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return nil
		}
	}

	tenant, err := s.GetDefaultTenant(ctx)
	if err != nil {
		return fmt.Errorf("default tenant: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: prefix,
		Scopes:    []string{models.ScopeAdmin, models.ScopeIngest, models.ScopeReport, models.ScopeSimulate},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return err
	}
	slog.Info("bootstrap admin key installed", "tenant_id", tenant.ID, "key_prefix", prefix)
	return nil
}

// healthHandler checks database and cache connectivity. The pipeline is
// reported but never degrades the service: stored runs remain servable.
func healthHandler(s store.Store, c cache.Cache, pc pipeline.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		switch {
		case pc == nil:
			checks["pipeline"] = "disabled"
		case pc.Ready(r.Context()) != nil:
			checks["pipeline"] = "unreachable"
		default:
			checks["pipeline"] = "ok"
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
