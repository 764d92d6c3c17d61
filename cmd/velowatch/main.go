package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/velowatch/velowatch/internal/api/http"
	"github.com/velowatch/velowatch/internal/bikes"
	"github.com/velowatch/velowatch/internal/config"
	"github.com/velowatch/velowatch/internal/metrics"
	"github.com/velowatch/velowatch/internal/scheduler"
	"github.com/velowatch/velowatch/internal/scrape"
	"github.com/velowatch/velowatch/internal/store"
	"github.com/velowatch/velowatch/internal/syncer"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Raw/summary store: Postgres when configured, in-memory otherwise.
	var repo bikes.Repository
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to open postgres store: %v", err)
		}
		defer pg.Close()
		repo = pg
	} else {
		log.Println("INFO: DATABASE_URL not set; using in-memory store")
		repo = store.NewMemoryStore()
	}

	// External sync is optional.
	var (
		queue      *syncer.Queue
		syncClient *syncer.Client
		syncQueue  bikes.SyncQueue
	)
	if cfg.SyncBaseURL != "" {
		queue = syncer.NewQueue()
		syncClient = syncer.NewClient(httpClient, cfg.SyncBaseURL)
		syncQueue = queue
	} else {
		log.Println("INFO: SYNC_BASE_URL not set; external sync disabled")
	}

	// Core pipeline service.
	service := bikes.NewService(repo, syncQueue, bikes.ServiceConfig{
		Timezone:      cfg.ReportingTZ,
		Resolution:    cfg.BucketResolution,
		RetentionDays: cfg.RetentionDays,
	})

	// Station-map fetcher.
	fetcher := scrape.NewClient(httpClient, cfg.SourceURL)

	// Scheduler driving ingest, monthly reduce, and sync drain.
	sched := scheduler.New(service, fetcher, syncClient, queue, cfg.FetchInterval, cfg.SyncInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Metrics side listener.
	stopMetrics := metrics.Serve(":" + cfg.MetricsPort)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "velowatch",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "velowatch",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	if err := stopMetrics(shutdownCtx); err != nil {
		log.Printf("error stopping metrics server: %v", err)
	}
}
