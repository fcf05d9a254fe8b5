package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonaylor89/pixelgate/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

// withRateLimit buckets callers per subject and route. A failing limiter
// backend lets requests through; throttling is protection, not a
// dependency.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		subject := s.limitSubject(r)
		decision, err := s.rateLimiter.Allow(r.Context(), subject)
		if err != nil {
			s.logger.Printf("rate limiter check failed for subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// limitSubject identifies the caller: first hop of the configured header
// when present, the peer address otherwise.
func (s *Server) limitSubject(r *http.Request) string {
	subject, _, _ := strings.Cut(r.Header.Get(s.rateLimitHeader), ",")
	subject = strings.TrimSpace(subject)
	if subject == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			subject = host
		}
	}
	if subject == "" {
		subject = "anonymous"
	}
	return subject + ":" + routeLabel(r.URL.Path)
}

func shouldRateLimit(r *http.Request) bool {
	switch routeLabel(r.URL.Path) {
	case "/", "/healthz", "/metrics":
		return false
	}
	return true
}
