package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/snapd/internal/api"
	"github.com/ahrdadan/snapd/internal/browser"
	"github.com/ahrdadan/snapd/internal/capture"
	"github.com/ahrdadan/snapd/internal/config"
	"github.com/ahrdadan/snapd/internal/events"
	"github.com/ahrdadan/snapd/internal/logging"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	logger, err := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.Info().Str("version", config.Version).Msg("Starting API server...")

	// Output directory must exist and be writable for save_file requests
	store := capture.NewStore(cfg.OutputDir)
	if err := store.Prepare(); err != nil {
		logger.Warn().Err(err).Str("dir", store.Dir()).Msg("Failed to prepare screenshot directory")
	}

	chromeBin := resolveChrome(context.Background(), cfg, logger)

	launcher := browser.NewChromeLauncher(browser.LaunchOptions{
		Bin:          chromeBin,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
	})

	// Capture events
	hub := events.NewHub()
	defer hub.Close()
	notifiers := events.Multi{hub}

	if cfg.NatsURL != "" {
		publisher, err := events.ConnectNATS(cfg.NatsURL, cfg.NatsSubject, config.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS unavailable, capture events will not be published")
		} else {
			defer func() {
				if err := publisher.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close NATS connection")
				}
			}()
			notifiers = append(notifiers, publisher)
			logger.Info().Str("url", cfg.NatsURL).Str("subject", publisher.Subject()).Msg("Publishing capture events to NATS")
		}
	}

	service := capture.NewService(launcher, store, notifiers, cfg.CaptureOptions(), logger)

	var checker api.OutputChecker
	if cfg.CheckOutputDir {
		checker = store
	}

	// Create Fiber app
	app := api.NewApp()

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	// Setup routes
	api.SetupRoutes(app, api.NewHandler(service, checker, logger))
	api.SetupEventRoutes(app, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	// Start server
	addr := cfg.Addr()
	logger.Info().Str("addr", addr).Str("output_dir", store.Dir()).Msg("Starting server")

	if err := app.Listen(addr); err != nil {
		logger.Error().Err(err).Msg("Failed to start server")
		os.Exit(1)
	}
}
