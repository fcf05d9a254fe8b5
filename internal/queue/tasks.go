// Package queue enqueues and decodes the asynq cache warming tasks.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const TypeWarmResult = "result:warm"

// WarmResultPayload carries one command path to generate ahead of demand.
// The worker re-parses and re-verifies the path, so the payload stays a
// plain string rather than a pre-trusted command.
type WarmResultPayload struct {
	Path        string    `json:"path"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewWarmResultTask(payload WarmResultPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.Path) == "" {
		return nil, fmt.Errorf("warm payload path is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal warm payload: %w", err)
	}
	return asynq.NewTask(TypeWarmResult, body), nil
}

func ParseWarmResultPayload(task *asynq.Task) (WarmResultPayload, error) {
	var payload WarmResultPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WarmResultPayload{}, fmt.Errorf("unmarshal warm payload: %w", err)
	}
	if strings.TrimSpace(payload.Path) == "" {
		return WarmResultPayload{}, fmt.Errorf("warm payload path is required")
	}
	return payload, nil
}
