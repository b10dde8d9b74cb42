// Command server runs the runcore HTTP API: session ingest, course
// catalog, route matching, leaderboards and spatial queries, backed by a
// single Postgres/PostGIS database and an in-process background worker
// pool for ranking recalculation and import processing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"runcore/internal/anomaly"
	"runcore/internal/auth"
	"runcore/internal/courses"
	"runcore/internal/httpapi"
	"runcore/internal/importpipeline"
	"runcore/internal/ingest"
	"runcore/internal/platform/cache"
	"runcore/internal/platform/config"
	"runcore/internal/platform/database"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/metrics"
	"runcore/internal/platform/ratelimit"
	"runcore/internal/platform/telemetry"
	"runcore/internal/ranking"
	"runcore/internal/routematch"
	"runcore/internal/spatial"
	"runcore/internal/taskqueue"
	"runcore/internal/users"
	"runcore/migrations"
	"runcore/pkg/passhash"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("failed to load config", "error", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Info("starting runcore server",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
		}
	}

	reg := metrics.NewRegistry(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.FS, "."); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	courseRepo := courses.NewPostgresRepository(db)
	userRepo := users.NewPostgresRepository(db)
	sessionRepo := ingest.NewPostgresSessionRepository(db)
	chunkRepo := ingest.NewPostgresChunkRepository(db)
	runRecordRepo := ingest.NewPostgresRunRecordRepository(db)
	rankingRepo := ranking.NewPostgresRepository(db)
	spatialRepo := spatial.NewPostgresRepository(db)
	importRepo := importpipeline.NewPostgresRepository(db)
	refreshRepo := auth.NewPostgresRepository(db)
	socialRepo := auth.NewPostgresSocialAccountRepository(db)

	liveMatcher := routematch.NewDecider(courseRepo)
	candidateMatcher := routematch.NewCandidateDecider(courseRepo, cfg.Run.CandidateRadiusM, cfg.Run.CandidateLimit)
	anomalyDetector := anomaly.NewAdapter()

	coursesService := courses.NewService(courseRepo)
	rankingService := ranking.NewService(db, runRecordRepo)
	spatialService := spatial.NewService(spatialRepo)

	jwtManager := passhash.NewJWTManager(&passhash.JWTConfig{
		SecretKey:          cfg.Run.JWTSecret,
		AccessTokenExpiry:  cfg.Run.AccessTokenTTL,
		RefreshTokenExpiry: cfg.Run.RefreshTokenTTL,
		Issuer:             cfg.Run.JWTIssuer,
	})
	signingKeyCache, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		logger.Fatal("failed to build signing key cache", "error", err)
	}
	defer signingKeyCache.Close()
	authService := auth.NewService(jwtManager, refreshRepo, socialRepo, userRepo, signingKeyCache)

	// ingestService and importService both need internal/taskqueue.Pool as
	// their enqueuer, but Pool needs importService already built as its
	// ImportHandler. Both are constructed with a nil enqueuer first, then
	// rebound once the Pool exists (see the Set* setters each defines).
	ingestService := ingest.NewService(
		sessionRepo, chunkRepo, runRecordRepo, courseRepo, userRepo,
		liveMatcher, anomalyDetector, nil,
		cfg.App.StrictMode,
	)
	importService := importpipeline.NewService(
		importRepo, sessionRepo, runRecordRepo, userRepo, candidateMatcher, nil, nil,
	)

	pool := taskqueue.New(cfg.TaskQueue.Workers, cfg.TaskQueue.QueueSize, cfg.Retry,
		rankingService, importService, reg)

	ingestService.SetRankingEnqueuer(pool)
	importService.SetRankingEnqueuer(pool)
	importService.SetQueue(pool)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.FromConfig(&cfg.RateLimit))
		defer limiter.Close()
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Auth:     authService,
		Ingest:   ingestService,
		Imports:  importService,
		Courses:  coursesService,
		Spatial:  spatialService,
		Rankings: rankingRepo,
		Metrics:  reg,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("task queue shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
