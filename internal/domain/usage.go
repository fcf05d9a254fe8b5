package domain

import "time"

// Outcome labels classify how a transformation request ended. They appear
// both on usage records and as metric label values.
const (
	OutcomeOK        = "ok"
	OutcomeParse     = "parse_error"
	OutcomeSignature = "signature_error"
	OutcomeNotFound  = "not_found"
	OutcomeOrigin    = "origin_error"
	OutcomeLoad      = "load_error"
	OutcomeExport    = "export_error"
	OutcomeTimeout   = "timeout"
	OutcomeInternal  = "internal_error"
)

// UsageRecord is one row of the processing audit log, written best-effort
// after each transformation attempt.
type UsageRecord struct {
	ResultKey   string
	SourceBytes int64
	ResultBytes int64
	Width       int
	Height      int
	DurationMS  int64
	Outcome     string
	CreatedAt   time.Time
}
