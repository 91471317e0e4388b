// Package main runs the document-to-relational backfill migration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/assessly/assessly/internal/backfill"
	"github.com/assessly/assessly/internal/cache"
	"github.com/assessly/assessly/internal/config"
	"github.com/assessly/assessly/internal/store/postgres"
	"github.com/assessly/assessly/internal/store/surreal"
	"github.com/assessly/assessly/internal/tenantdb"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Env, "page_size", cfg.Backfill.PageSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the document store
	db, err := surreal.Connect(ctx, cfg.Surreal)
	if err != nil {
		return fmt.Errorf("connect surrealdb: %w", err)
	}
	defer db.Close(ctx)
	slog.Info("document store connected")

	// 3. Connect to the control database
	mgr, err := tenantdb.NewManager(ctx, cfg.Control, nil)
	if err != nil {
		return fmt.Errorf("connect control database: %w", err)
	}
	defer mgr.CloseAll()
	slog.Info("control database connected")

	// 4. Build both store sets
	source := backfill.Stores{
		Organizations: surreal.NewOrganizations(db),
		Assessments:   surreal.NewAssessments(db),
		Findings:      surreal.NewFindings(db),
	}
	target := backfill.Stores{
		Organizations: postgres.NewOrganizations(mgr.Control()),
		Assessments:   postgres.NewAssessments(mgr),
		Findings:      postgres.NewFindings(mgr),
	}

	// 5. Redis is optional for a migration run. When the serving stack's
	// cache is reachable, route organization and assessment writes through
	// the caching decorators so migrated records evict stale cached copies.
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		target.Organizations = cache.NewCachedOrganizationStore(
			target.Organizations, redisCache, cfg.Redis.AssessmentTTL)
		target.Assessments = cache.NewCachedAssessmentStore(
			target.Assessments, redisCache, cfg.Redis.AssessmentTTL)
		slog.Info("redis connected")
	}

	// 6. Run the migration
	engine := backfill.NewEngine(source, target, mgr, cfg.Backfill.PageSize)
	if err := engine.Run(ctx); err != nil {
		return err
	}

	slog.Info("backfill complete")
	return nil
}
