package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deepresearch.app/orchestrator/common/id"
	"deepresearch.app/orchestrator/common/llm"
	"deepresearch.app/orchestrator/common/logger"
	"deepresearch.app/orchestrator/common/otel"
	"deepresearch.app/orchestrator/core/config"
	"deepresearch.app/orchestrator/internal/extract"
	"deepresearch.app/orchestrator/internal/http/handler"
	"deepresearch.app/orchestrator/internal/http/middleware"
	httprouter "deepresearch.app/orchestrator/internal/http/router"
	"deepresearch.app/orchestrator/internal/research"
	"deepresearch.app/orchestrator/internal/search"
	"deepresearch.app/orchestrator/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	_ = godotenv.Load()
	cfg := config.Load()

	// OTel must init before logger (logger uses the OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "research orchestrator starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse database config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runs := store.NewRunStore(pool)
	if err := runs.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure run ledger schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	var findings *store.FindingsStore
	if cfg.Arango.User != "" {
		findings, err = store.NewFindingsStore(ctx, cfg.Arango.Endpoints, cfg.Arango.User, cfg.Arango.Password, cfg.Arango.Database)
		if err != nil {
			slog.WarnContext(ctx, "failed to connect to arangodb, findings will not be persisted", "error", err)
		} else {
			slog.InfoContext(ctx, "arangodb connected")
		}
	}

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	reasoningClient, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.Research.ReasoningModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize reasoning client", "error", err)
		os.Exit(1)
	}

	loop := research.NewLoop(research.Clients{
		Search:    search.New(cfg.Firecrawl.APIKey, nil),
		Extract:   extract.New(cfg.Firecrawl.APIKey, nil),
		Reasoning: reasoningClient,
	}, research.Config{
		MaxDepth:             cfg.Research.MaxDepth,
		TimeLimit:            cfg.Research.TimeLimit,
		MaxFailedAttempts:    cfg.Research.MaxFailedAttempts,
		ReasoningModel:       cfg.Research.ReasoningModel,
		BypassJSONValidation: cfg.Research.BypassJSONValidation,
		DebugDir:             cfg.Research.DebugDir,
	})

	researchHandler := handler.NewResearchHandler(loop, redisClient, runs, findings, cfg.Pipeline.StreamKeyPrefix)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, researchHandler)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE streams run indefinitely
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, researchHandler *handler.ResearchHandler) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span -> Recovery catches panics -> Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, researchHandler)

	return router
}

const banner = `
██████╗ ███████╗███████╗███████╗ █████╗ ██████╗  ██████╗██╗  ██╗
██╔══██╗██╔════╝██╔════╝██╔════╝██╔══██╗██╔══██╗██╔════╝██║  ██║
██████╔╝█████╗  ███████╗█████╗  ███████║██████╔╝██║     ███████║
██╔══██╗██╔══╝  ╚════██║██╔══╝  ██╔══██║██╔══██╗██║     ██╔══██║
██║  ██║███████╗███████║███████╗██║  ██║██║  ██║╚██████╗██║  ██║
╚═╝  ╚═╝╚══════╝╚══════╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝
`
