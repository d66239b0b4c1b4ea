package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"capture/internal/config"
	"capture/internal/database"
	"capture/internal/database/migration"
	handlers "capture/internal/http/handler"
	"capture/internal/http/middleware"
	"capture/internal/logging"
	"capture/internal/metrics"
	"capture/internal/otel"
	"capture/internal/queue"
	"capture/internal/rag"
	"capture/internal/rag/ollama"
	"capture/internal/rag/qdrant"
	"capture/internal/rag/splitter"
	"capture/internal/repository/postgres"
	"capture/internal/retrieval"
	"capture/internal/service"
	"capture/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Error("init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces", "error", err)
		}
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log); err != nil {
		log.Error("migrate schema", "error", err)
		os.Exit(1)
	}

	// Raw-content archive is optional; the database stays the source of truth.
	var archive storage.Storage
	if cfg.MinIO.Enabled {
		archive, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			log.Error("init object storage", "error", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	procMetrics, err := metrics.NewProcessing(registry)
	if err != nil {
		log.Error("register processing metrics", "error", err)
		os.Exit(1)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		log.Error("register http metrics", "error", err)
		os.Exit(1)
	}

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:         cfg.Ollama.BaseURL,
		EmbeddingModel:  cfg.Ollama.EmbeddingModel,
		GenerativeModel: cfg.Ollama.GenerativeModel,
		Timeout:         cfg.Ollama.Timeout,
	})
	vectorIndex := qdrant.New(qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	})
	textSplitter := splitter.New(cfg.Chunking.SplitBy, cfg.Chunking.SplitLength,
		cfg.Chunking.SplitOverlap, cfg.Chunking.MinChunkSize)

	docRepo := postgres.NewDocumentPostgres(db)
	dispatch := queue.NewDispatcher(log)

	docSvc := service.NewDocumentService(service.DocumentServiceParams{
		Repo:           docRepo,
		Splitter:       textSplitter,
		Embedder:       ollamaClient,
		Index:          vectorIndex,
		Dispatch:       dispatch,
		Archive:        archive,
		Metrics:        procMetrics,
		Log:            log,
		MaxContentSize: cfg.Processing.MaxContentSize,
		MaxRetries:     cfg.Processing.MaxRetries,
		Retry:          rag.DefaultRetryPolicy(),
	})
	querySvc := service.NewQueryService(service.QueryServiceParams{
		Embedder:  ollamaClient,
		Index:     vectorIndex,
		Generator: ollamaClient,
		Filter:    retrieval.NewFilter(cfg.Retrieval.MinScore, cfg.Retrieval.RelativeMargin, cfg.Retrieval.DefaultLimit),
		TopK:      cfg.Retrieval.SearchTopK,
		Log:       log,
		Retry:     rag.DefaultRetryPolicy(),
	})
	sweeper := service.NewRetrySweeper(docRepo, docSvc, procMetrics, log,
		cfg.Processing.MaxRetries, cfg.Processing.SweepInterval)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, db, docSvc, querySvc, sweeper, archive)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatch.Shutdown(shutdownCtx); err != nil {
			log.Warn("background tasks did not drain", "error", err)
		}
		// The sweeper may still be mid-sweep; wait for its loop to exit so
		// terminal status writes land before the process does.
		<-sweeperDone
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Info("listening", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
