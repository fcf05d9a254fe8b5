// Package domain holds the request and record types shared by the HTTP
// server and the worker.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MaxPrewarmPaths bounds one prewarm request so a single call cannot flood
// the queue.
const MaxPrewarmPaths = 100

// PrewarmRequest asks for command paths to be generated ahead of demand.
// Each entry is a full command path, signed or unsafe, without a leading
// slash.
type PrewarmRequest struct {
	Paths []string `json:"paths"`
}

func (r PrewarmRequest) Validate() error {
	if len(r.Paths) == 0 {
		return errors.New("paths must contain at least one entry")
	}
	if len(r.Paths) > MaxPrewarmPaths {
		return fmt.Errorf("paths must contain at most %d entries", MaxPrewarmPaths)
	}
	for i, path := range r.Paths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("paths[%d] is empty", i)
		}
	}
	return nil
}
