// queryflow server — accepts long-running queries, executes them in the
// background, and streams execution progress to any number of concurrent
// subscribers per session.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/queryflow/queryflow/pkg/api"
	"github.com/queryflow/queryflow/pkg/config"
	"github.com/queryflow/queryflow/pkg/events"
	"github.com/queryflow/queryflow/pkg/executor"
	"github.com/queryflow/queryflow/pkg/queue"
	"github.com/queryflow/queryflow/pkg/services"
	"github.com/queryflow/queryflow/pkg/session"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	cfg := config.Load()

	slog.Info("Starting queryflow",
		"http_port", cfg.HTTPPort,
		"workers", cfg.WorkerCount,
		"max_events_per_session", cfg.MaxEventsPerSession)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	engine := executor.NewOpenAIEngine(apiKey, cfg.OpenAIModel)

	// One explicitly constructed instance of each shared component, handed
	// to every request handler.
	store := session.NewStore()
	bus := events.NewBus(cfg.MaxEventsPerSession, cfg.SubscriberBuffer)

	pool := queue.NewPool(cfg.WorkerCount)
	pool.Start()

	driver := executor.NewDriver(store, bus, engine, pool)
	sessionService := services.NewSessionService(store, bus, driver, engine)
	slog.Info("Services initialized")

	httpServer := api.NewServer(cfg, sessionService)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop HTTP intake first so no new executions are launched, then drain
	// in-flight executions with a bounded wait.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer drainCancel()
	if err := driver.Wait(drainCtx); err != nil {
		slog.Warn("Shutdown timeout exceeded, abandoning in-flight executions", "error", err)
	} else {
		slog.Info("In-flight executions drained")
	}

	pool.Stop()
	slog.Info("Shutdown complete")
}
