// Package main provides the AutoWeave cron scheduler process: it fans
// registered schedules across every queue a Manager owns, firing jobs
// when they come due.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/manager"
	"github.com/autoweave/jobqueue/internal/scheduler"
	"github.com/autoweave/jobqueue/internal/worker"
	"github.com/redis/go-redis/v9"
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

	schedulerLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceInternal)
	schedulerLog.Info("scheduler starting", "redis_url", cfg.RedisURL)

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	go func() {
		schedulerLog.Info("starting pprof server", "port", pprofPort)
		server := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			schedulerLog.Error("pprof server failed", "error", err)
		}
	}()

	// A scheduler process runs no processors of its own: jobs it fires
	// are picked up by worker processes sharing the same queues. The
	// registry passed to Manager only needs to be non-nil.
	mgr := manager.New(worker.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Initialize(ctx, cfg); err != nil {
		schedulerLog.Error("failed to initialize manager", "error", err)
		os.Exit(1)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		schedulerLog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(opts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			schedulerLog.Error("failed to close redis client", "error", err)
		}
	}()

	registry := scheduler.NewRegistry()

	// TODO: register real schedules here, or load them from a config
	// source. Example:
	// registry.MustRegister(&scheduler.Schedule{
	// 	ID:       "daily-cleanup",
	// 	Cron:     "0 0 * * *",
	// 	Queue:    "default",
	// 	Job:      job.Template{Kind: job.KindSystemCleanup, Options: job.Options{Priority: 5}},
	// 	Timezone: "UTC",
	// 	Enabled:  true,
	// })

	interval := 1 * time.Second
	if v := os.Getenv("CRON_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}
	maxConcurrent := int64(10)
	if v := os.Getenv("CRON_SCHEDULER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			maxConcurrent = n
		}
	}

	cronScheduler := scheduler.NewCronScheduler(registry, mgr, redisClient, interval, maxConcurrent)
	schedulerLog.Info("cron scheduler initialized", "interval", interval, "schedules", registry.Count())

	schedCtx, schedCancel := context.WithCancel(ctx)
	mgr.AttachScheduler(cronScheduler, schedCancel)
	go cronScheduler.Start(schedCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	schedulerLog.Info("received shutdown signal, initiating graceful shutdown", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mgr.GracefulShutdown(shutdownCtx, 10*time.Second); err != nil {
		schedulerLog.Error("graceful shutdown completed with errors", "error", err)
		os.Exit(1)
	}
	schedulerLog.Info("scheduler shut down successfully")
}
