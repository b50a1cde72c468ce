package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm_worker/config"
	"crm_worker/internal/bootstrap"
	"crm_worker/pkg/errtrack"
	"crm_worker/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "crm-worker",
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	if *mode != "api" && *mode != "worker" && *mode != "all" {
		logger.Fatal("Unknown mode: %s", *mode)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer func() {
		errtrack.Flush(2 * time.Second)
		cleanup()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch *mode {
	case "api":
		runAPI(deps, nil, sigChan)
	case "worker":
		runWorker(bootstrap.NewWorker(deps), sigChan)
	case "all":
		w := bootstrap.NewWorker(deps)
		go func() {
			if err := w.Start(); err != nil {
				logger.Error("Worker failed to start: %v", err)
			}
		}()
		runAPI(deps, w.Metrics, sigChan)
		w.Stop()
	}
}

func runAPI(deps *bootstrap.Dependencies, poolMetrics func() any, sigChan <-chan os.Signal) {
	seedCtx, seedCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := deps.Seed(seedCtx); err != nil {
		logger.Error("Seeding rules failed: %v", err)
	}
	seedCancel()

	app := bootstrap.NewAPI(deps, poolMetrics)

	go func() {
		<-sigChan
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("Server stopped: %v", err)
	}
}

func runWorker(w *bootstrap.Worker, sigChan <-chan os.Signal) {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigChan
		logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

		done := make(chan struct{})
		go func() {
			w.Stop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("Worker shut down gracefully")
		case <-time.After(shutdownTimeout):
			logger.Warn("Worker shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	logger.Info("Starting worker...")
	if err := w.Start(); err != nil {
		logger.Error("Worker failed to start: %v", err)
		return
	}
	<-stopped
}
