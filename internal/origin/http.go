// Package origin fetches source images from upstream HTTP servers.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound reports an upstream that answered but has no such image.
var ErrNotFound = errors.New("source not found")

type Config struct {
	// Timeout bounds one fetch end to end. Zero picks a default.
	Timeout time.Duration
	// MaxBodyBytes rejects bodies larger than this. Zero picks a default.
	MaxBodyBytes int64
	// Schemes is the allow-list, http and https when empty.
	Schemes []string
	// UserAgent identifies the service to upstreams.
	UserAgent string
}

// HTTP is the bounded upstream fetcher. Every limit is enforced here so the
// engine only ever sees complete, size-checked source bytes.
type HTTP struct {
	client    *http.Client
	maxBody   int64
	schemes   []string
	userAgent string
}

func NewHTTP(cfg Config) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	schemes := cfg.Schemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "pixelgate"
	}

	return &HTTP{
		client:    &http.Client{Timeout: timeout},
		maxBody:   maxBody,
		schemes:   schemes,
		userAgent: userAgent,
	}
}

func (h *HTTP) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q", ref)
	}
	if !h.schemeAllowed(u.Scheme) {
		return nil, fmt.Errorf("origin scheme %q not allowed", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch origin: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: status=%d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("origin returned status=%d", resp.StatusCode)
	}

	if resp.ContentLength > h.maxBody {
		return nil, fmt.Errorf("origin body %d bytes exceeds limit %d", resp.ContentLength, h.maxBody)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	if int64(len(data)) > h.maxBody {
		return nil, fmt.Errorf("origin body exceeds limit %d", h.maxBody)
	}
	return data, nil
}

func (h *HTTP) schemeAllowed(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, allowed := range h.schemes {
		if scheme == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
