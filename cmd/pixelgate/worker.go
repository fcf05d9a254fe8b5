package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonaylor89/pixelgate/internal/config"
	"github.com/jonaylor89/pixelgate/internal/webhook"
	"github.com/jonaylor89/pixelgate/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the warm queue worker",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := setupTracing(ctx, "pixelgate-worker", cfg.Trace, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	core, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.close()

	var webhookClient *webhook.Client
	if cfg.Webhook.URL != "" {
		webhookClient = webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.Secret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
		})
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, core.pipeline, webhookClient, cfg.Webhook.URL)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		metricsServer := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux}
		go func() {
			logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server failed: %v", err)
			}
		}()
		defer metricsServer.Close()
	}

	logger.Printf(
		"starting worker concurrency=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}
