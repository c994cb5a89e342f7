package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/framelens/promptforge/internal/config"
	dbRedis "github.com/framelens/promptforge/internal/db/redis"
	logpkg "github.com/framelens/promptforge/internal/logger"
	"github.com/framelens/promptforge/internal/metrics"
	"github.com/framelens/promptforge/internal/ratelimit"
	catalogrepo "github.com/framelens/promptforge/internal/repository/catalog"
	ledgerrepo "github.com/framelens/promptforge/internal/repository/ledger"
	progressrepo "github.com/framelens/promptforge/internal/repository/progress"
	runlogrepo "github.com/framelens/promptforge/internal/repository/runlog"
	templaterepo "github.com/framelens/promptforge/internal/repository/templates"
	chiTransport "github.com/framelens/promptforge/internal/transport/chi"
	openaiTransport "github.com/framelens/promptforge/internal/transport/openai"
	visionTransport "github.com/framelens/promptforge/internal/transport/vision"
	bulkuc "github.com/framelens/promptforge/internal/usecase/bulk"
	healthuc "github.com/framelens/promptforge/internal/usecase/health"
	pipelineuc "github.com/framelens/promptforge/internal/usecase/pipeline"
	"github.com/framelens/promptforge/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting promptforge API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Repositories
	catalogRepo := catalogrepo.New(store, cfg.Embedding.Dimensions)
	if err := catalogRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}
	templateRepo := templaterepo.New(store)
	ledgerRepo := ledgerrepo.New(store)
	runlogRepo := runlogrepo.New(store)
	progressPub := progressrepo.New(store, logger)

	// Rate limiter with write-behind counter persistence
	limiter := ratelimit.New(logger).WithStore(store)
	for name, layers := range cfg.RateLimits.Buckets {
		ll := make([]ratelimit.Layer, len(layers))
		for i, l := range layers {
			ll[i] = ratelimit.Layer{
				Limit:  l.Limit,
				Window: time.Duration(l.WindowSec) * time.Second,
			}
		}
		limiter.AddBucket(name, ll...)
	}

	// Upstream clients
	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Logger:      logger,
	})
	vision := visionTransport.New(&visionTransport.Config{
		BaseURL:      cfg.Vision.BaseURL,
		APIKey:       cfg.Vision.APIKey,
		Timeout:      time.Duration(cfg.Vision.TimeoutSec) * time.Second,
		PollInterval: time.Duration(cfg.Vision.PollIntervalSec) * time.Second,
		PollAttempts: cfg.Vision.PollMaxAttempts,
		Logger:       logger,
	})
	logger.Info("Upstream clients created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("vision_base_url", cfg.Vision.BaseURL),
	)

	// Use case services
	pipelineSvc := pipelineuc.New(pipelineuc.Deps{
		Limiter:   limiter,
		Ledger:    ledgerRepo,
		Catalog:   catalogRepo,
		Templates: templateRepo,
		Vision:    vision,
		Embedder:  embedder,
		Generator: generator,
		RunLog:    runlogRepo,
		Progress:  progressPub,
	}, pipelineuc.Config{
		CreditCost:      cfg.Pipeline.CreditCost,
		RetrievalK:      cfg.Pipeline.RetrievalK,
		Recommendations: cfg.Pipeline.Recommendations,
	}, logger)

	bulkSvc := bulkuc.New(catalogRepo, vision, embedder, limiter, bulkuc.Config{
		Concurrency: cfg.Pipeline.BulkConcurrency,
		MaxItems:    cfg.Pipeline.BulkMaxItems,
	}, logger)

	healthSvc := healthuc.New(store, embedder)

	server := chiTransport.NewServer(pipelineSvc, bulkSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
