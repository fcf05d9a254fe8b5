// Package api serves the transformation endpoint and the operational
// surface around it: command debugging, prewarm enqueueing, health and
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonaylor89/pixelgate/internal/domain"
	"github.com/jonaylor89/pixelgate/internal/engine"
	"github.com/jonaylor89/pixelgate/internal/id"
	"github.com/jonaylor89/pixelgate/internal/pipeline"
	"github.com/jonaylor89/pixelgate/internal/pixelpath"
	"github.com/jonaylor89/pixelgate/internal/storage"
)

type Server struct {
	logger          *log.Logger
	pipeline        *pipeline.Pipeline
	queueClient     queueEnqueuer
	metrics         *metrics
	tracer          trace.Tracer
	rateLimiter     RateLimiter
	rateLimitHeader string
	processTimeout  time.Duration
	cacheControlTTL time.Duration
	mux             *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueWarmResult(ctx context.Context, path string) (*asynq.TaskInfo, error)
	QueueDepth() (int, error)
}

// NewServer wires the HTTP surface. queueClient and limiter may be nil,
// disabling the prewarm endpoint and rate limiting respectively.
func NewServer(logger *log.Logger, pl *pipeline.Pipeline, queueClient queueEnqueuer, limiter RateLimiter, limiterHeader string, processTimeout, cacheControlTTL time.Duration) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)
	}
	if limiterHeader == "" {
		limiterHeader = "X-Forwarded-For"
	}
	if processTimeout <= 0 {
		processTimeout = 30 * time.Second
	}
	if cacheControlTTL <= 0 {
		cacheControlTTL = 7 * 24 * time.Hour
	}

	s := &Server{
		logger:          logger,
		pipeline:        pl,
		queueClient:     queueClient,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelgate/api"),
		rateLimiter:     limiter,
		rateLimitHeader: limiterHeader,
		processTimeout:  processTimeout,
		cacheControlTTL: cacheControlTTL,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withTracing(h)
	h = s.withRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /prewarm", s.handlePrewarm)
	s.mux.HandleFunc("GET /{path...}", s.handleImage)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImage runs the full request flow: parse the command path, check
// its signature, serve a stored result when one exists, otherwise
// transform and serve the fresh output.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]string{"service": "pixelgate"})
		return
	}

	cmd, err := pixelpath.Parse(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if cmd.Debug {
		writeJSON(w, http.StatusOK, cmd)
		return
	}

	if err := s.pipeline.Authorize(cmd); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "signature does not match"})
		return
	}

	key := s.pipeline.ResultKey(cmd)
	if blob, ok := s.pipeline.Lookup(r.Context(), key); ok {
		s.metrics.resultLookups.WithLabelValues("hit").Inc()
		s.serveBlob(w, r, blob)
		return
	}
	s.metrics.resultLookups.WithLabelValues("miss").Inc()

	ctx, cancel := context.WithTimeout(r.Context(), s.processTimeout)
	defer cancel()

	res, err := s.pipeline.Process(ctx, cmd)
	outcome := pipeline.Outcome(err)
	s.metrics.transformsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		status := statusFromOutcome(outcome)
		if status >= http.StatusInternalServerError {
			s.logger.Printf("transform failed path=%s outcome=%s err=%v", cmd.Path, outcome, err)
		}
		writeJSON(w, status, map[string]string{"error": publicError(outcome)})
		return
	}

	s.metrics.sourceBytes.Add(float64(res.SourceBytes))
	s.metrics.resultBytes.Add(float64(len(res.Data)))
	s.serveBlob(w, r, storage.Blob{Data: res.Data, ContentType: res.ContentType})
}

func (s *Server) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	if s.queueClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prewarm queue is not configured"})
		return
	}

	var req domain.PrewarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	enqueued := make([]string, 0, len(req.Paths))
	failed := map[string]string{}
	for _, p := range req.Paths {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if _, err := pixelpath.Parse(p); err != nil {
			failed[p] = err.Error()
			continue
		}
		if _, err := s.queueClient.EnqueueWarmResult(r.Context(), p); err != nil {
			s.logger.Printf("enqueue warm failed path=%s err=%v", p, err)
			failed[p] = "enqueue failed"
			continue
		}
		s.metrics.prewarmEnqueued.Inc()
		enqueued = append(enqueued, p)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"enqueued": enqueued,
		"failed":   failed,
	})
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, blob storage.Blob) {
	contentType := blob.ContentType
	if contentType == "" {
		contentType = engine.SniffContentType(blob.Data)
	}

	etag := fmt.Sprintf("\"%x\"", xxhash.Sum64(blob.Data))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cacheControlTTL.Seconds())))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	if _, err := w.Write(blob.Data); err != nil {
		s.logger.Printf("write response failed: %v", err)
	}
}

// ObserveQueueDepth polls the warm queue size into the queue depth gauge
// until ctx is done.
func (s *Server) ObserveQueueDepth(ctx context.Context, every time.Duration) {
	if s.queueClient == nil {
		return
	}
	if every <= 0 {
		every = 15 * time.Second
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := s.queueClient.QueueDepth()
			if err != nil {
				s.logger.Printf("queue depth check failed: %v", err)
				continue
			}
			s.metrics.queueDepth.Set(float64(depth))
		}
	}
}

const requestIDHeader = "X-Request-Id"

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = id.New()
		}
		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r)
	})
}

func statusFromOutcome(outcome string) int {
	switch outcome {
	case domain.OutcomeParse:
		return http.StatusBadRequest
	case domain.OutcomeSignature:
		return http.StatusForbidden
	case domain.OutcomeNotFound:
		return http.StatusNotFound
	case domain.OutcomeOrigin:
		return http.StatusBadGateway
	case domain.OutcomeLoad:
		return http.StatusUnprocessableEntity
	case domain.OutcomeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicError keeps upstream hosts, storage keys and wrapped error chains
// out of response bodies; details go to the log.
func publicError(outcome string) string {
	switch outcome {
	case domain.OutcomeParse:
		return "invalid command path"
	case domain.OutcomeSignature:
		return "signature does not match"
	case domain.OutcomeNotFound:
		return "source image not found"
	case domain.OutcomeOrigin:
		return "upstream fetch failed"
	case domain.OutcomeLoad:
		return "source image cannot be decoded"
	case domain.OutcomeExport:
		return "result encoding failed"
	case domain.OutcomeTimeout:
		return "processing timed out"
	default:
		return "internal error"
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
