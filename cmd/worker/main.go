// Package main provides the AutoWeave job-queue worker process: it loads
// configuration, registers processors, and runs a Manager until signaled
// to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/job"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/manager"
	"github.com/autoweave/jobqueue/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	workerLog := log.WithComponent(logger.ComponentWorker).WithSource(logger.LogSourceInternal)
	workerLog.Info("worker starting", "redis_url", cfg.RedisURL, "queues", len(cfg.Queues))

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6061"
	}
	go func() {
		workerLog.Info("starting pprof server", "port", pprofPort)
		server := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			workerLog.Error("pprof server failed", "error", err)
		}
	}()

	// TODO: replace illustrative processors with the host's real business
	// logic. These exist so the worker has something real to dispatch.
	registry := worker.NewRegistry()
	registry.Register(job.KindUSBAttach, worker.HandleUSBAttach)
	registry.Register(job.KindUSBDetach, worker.HandleUSBDetach)
	registry.Register(job.KindPluginLoad, worker.HandlePluginLoad, worker.WithLogging, worker.WithRetry(3))
	registry.Register(job.KindLLMCompletion, worker.HandleLLMCompletion, worker.WithTimeout(10*time.Second))
	registry.Register(job.KindSystemHealth, worker.HandleSystemHealth)
	registry.Register(job.KindMemoryVectorize, worker.HandleMemoryVectorize)
	workerLog.Info("registered processors", "count", registry.Count())

	mgr := manager.New(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Initialize(ctx, cfg); err != nil {
		workerLog.Error("failed to initialize manager", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		ticker := time.NewTicker(cfg.Monitoring.MetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health := mgr.Health()
				workerLog.Info("queue health", "status", health.Status, "queues", len(health.Queues))
				for name := range health.Queues {
					q := health.Queues[name]
					m := q.Metrics
					workerLog.Info("queue metrics",
						"queue", name,
						"status", q.Status,
						"jobs_completed", m.TotalJobsCompleted,
						"jobs_failed", m.TotalJobsFailed,
						"error_rate", fmt.Sprintf("%.2f%%", m.ErrorRate),
					)
				}
			}
		}
	}()

	sig := <-sigChan
	workerLog.Info("received shutdown signal, initiating graceful shutdown", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := mgr.GracefulShutdown(shutdownCtx, 30*time.Second); err != nil {
		workerLog.Error("graceful shutdown completed with errors", "error", err)
		os.Exit(1)
	}
	workerLog.Info("worker shut down successfully")
}
