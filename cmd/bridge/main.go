// Package main provides the AutoWeave USB hotplug bridge process: a
// standalone ingestion service for deployments where hotplug events are
// produced on a different host than the one running worker pools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autoweave/jobqueue/internal/bridge"
	"github.com/autoweave/jobqueue/internal/config"
	"github.com/autoweave/jobqueue/internal/logger"
	"github.com/autoweave/jobqueue/internal/metrics"
	"github.com/autoweave/jobqueue/internal/queue"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.USBBridge.Enabled {
		fmt.Fprintln(os.Stderr, "USB_BRIDGE_ENABLED is false; nothing to run")
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

	bridgeLog := log.WithComponent(logger.ComponentBridge).WithSource(logger.LogSourceInternal)
	bridgeLog.Info("bridge starting", "redis_url", cfg.RedisURL, "stream", cfg.USBBridge.StreamName)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		bridgeLog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		bridgeLog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			bridgeLog.Error("failed to close redis client", "error", err)
		}
	}()

	targetQueueName := "default"
	q := queue.New(redisClient, targetQueueName, queue.DefaultOptions(), metrics.NewRegistry())

	b := bridge.New(redisClient, q, cfg.USBBridge)
	if err := b.Start(ctx); err != nil {
		bridgeLog.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}
	bridgeLog.Info("bridge consuming hotplug events", "target_queue", targetQueueName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	bridgeLog.Info("received shutdown signal, stopping bridge", "signal", sig)

	cancel()
	b.Stop()
	time.Sleep(200 * time.Millisecond)
	bridgeLog.Info("bridge shut down successfully")
}
