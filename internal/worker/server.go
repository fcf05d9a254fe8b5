// Package worker consumes warm tasks from the queue and generates their
// results ahead of the first request.
package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonaylor89/pixelgate/internal/config"
	"github.com/jonaylor89/pixelgate/internal/domain"
	"github.com/jonaylor89/pixelgate/internal/pipeline"
	"github.com/jonaylor89/pixelgate/internal/queue"
	"github.com/jonaylor89/pixelgate/internal/webhook"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	pipeline      *pipeline.Pipeline
	webhookClient webhookSender
	webhookURL    string
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	pl *pipeline.Pipeline,
	webhookClient *webhook.Client,
	webhookURL string,
) (*Server, error) {
	if pl == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		pipeline:   pl,
		webhookURL: webhookURL,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("pixelgate/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeWarmResult, s.handleWarmResult)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleWarmResult(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "skipped"

	payload, err := queue.ParseWarmResultPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.warm_result", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("warm.path", payload.Path))
	defer span.End()
	defer func() {
		s.metrics.taskDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	}()

	s.metrics.activeTasks.Inc()
	defer s.metrics.activeTasks.Dec()

	s.logger.Printf("Warming... path=%s requested_at=%s", payload.Path, payload.RequestedAt.Format(time.RFC3339))

	generated, err := s.pipeline.Warm(ctx, payload.Path)
	if err != nil {
		outcome = pipeline.Outcome(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "warm failed")
		s.dispatchWebhook(ctx, "result.failed", map[string]any{
			"path":         payload.Path,
			"outcome":      outcome,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		if !retryable(outcome) {
			return fmt.Errorf("warm result: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("warm result: %w", err)
	}

	if !generated {
		s.logger.Printf("Skipped path=%s, result already stored", payload.Path)
		span.SetStatus(codes.Ok, "already stored")
		return nil
	}

	outcome = domain.OutcomeOK
	s.metrics.resultsGenerated.Inc()
	s.logger.Printf("Warmed path=%s", payload.Path)
	s.dispatchWebhook(ctx, "result.warmed", map[string]any{
		"path":         payload.Path,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
	})
	span.SetStatus(codes.Ok, "warmed")
	return nil
}

// retryable separates transient failures from ones a retry can never fix,
// like a path that does not parse or a source that does not decode.
func retryable(outcome string) bool {
	switch outcome {
	case domain.OutcomeOrigin, domain.OutcomeTimeout, domain.OutcomeInternal:
		return true
	}
	return false
}

// dispatchWebhook is fire-and-forget. Failing the task over a notification
// would rerun a transform whose result is already stored.
func (s *Server) dispatchWebhook(ctx context.Context, event string, body map[string]any) {
	if s.webhookURL == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, s.webhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed event=%s err=%v", event, err)
	}
}
