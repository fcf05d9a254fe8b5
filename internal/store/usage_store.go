// Package store writes the per-request processing audit log.
package store

import (
	"context"

	"github.com/jonaylor89/pixelgate/internal/domain"
)

// UsageStore records one row per transformation attempt. Writes are
// best-effort; callers log failures and move on.
type UsageStore interface {
	CreateUsageRecord(ctx context.Context, rec domain.UsageRecord) error
}
