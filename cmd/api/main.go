package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"

	"docsync/internal/app"
	"docsync/internal/config"
	handlers "docsync/internal/http/handler"
	"docsync/internal/http/middleware"
	"docsync/internal/logger"
	"docsync/internal/otel"
	"docsync/internal/trigger"
)

// Producers post whole PDFs as base64 data URIs.
const bodyLimit = 32 << 20

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, logCloser := logger.FromConfig(cfg.Log)
	defer logCloser.Close()

	if err := run(cfg, log); err != nil {
		log.Error("server_failed", err, nil)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	prom, err := middleware.NewPrometheusMiddleware(a.Registry)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	srv := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})

	srv.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	srv.Use(middleware.RequestID())
	srv.Use(middleware.Logger(log))
	srv.Use(prom.Handler())

	handlers.RegisterRoutes(srv, a.Records, a.Docs, a.Sync, a.Registry)

	monitorDone := make(chan struct{})
	if target := cfg.ProbeTarget(); target != "" {
		monitor := trigger.NewMonitor(target, a.Sync,
			trigger.WithInterval(time.Duration(cfg.Sync.ProbeIntervalSec)*time.Second),
			trigger.WithLogger(log),
		)
		go func() {
			defer close(monitorDone)
			monitor.Run(ctx)
		}()
	} else {
		log.Warn("connectivity_monitor_disabled", nil, map[string]any{"reason": "no probe url"})
		close(monitorDone)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("http_server_listening", map[string]any{"addr": addr})
		if err := srv.Listen(addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_signal_received", nil)
	case runErr = <-errCh:
	}
	stop()

	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("http_shutdown_failed", err, nil)
	}
	<-monitorDone
	log.Info("server_stopped", nil)
	return runErr
}
