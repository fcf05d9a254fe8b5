package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jonaylor89/pixelgate/internal/api"
	"github.com/jonaylor89/pixelgate/internal/config"
	"github.com/jonaylor89/pixelgate/internal/queue"
	"github.com/jonaylor89/pixelgate/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP transformation server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := setupTracing(ctx, "pixelgate-api", cfg.Trace, logger)
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

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var limiter api.RateLimiter
	if cfg.RateLimit.Capacity > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Printf("rate limit redis close error: %v", err)
			}
		}()

		tb, err := ratelimit.NewRedisTokenBucket(rdb, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			return err
		}
		limiter = tb
	}

	app := api.NewServer(
		logger,
		core.pipeline,
		queueClient,
		limiter,
		cfg.RateLimit.SubjectHeader,
		cfg.HTTP.ProcessTimeout,
		cfg.HTTP.CacheControlTTL,
	)

	observeCtx, cancelObserve := context.WithCancel(ctx)
	defer cancelObserve()
	go app.ObserveQueueDepth(observeCtx, 15*time.Second)

	httpServer := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     app.Handler(),
		ReadTimeout: 15 * time.Second,
		// The response cannot start before the transform finishes, so the
		// write timeout must outlast the processing budget.
		WriteTimeout: cfg.HTTP.ProcessTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	return nil
}
