package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queueName,
	}
}

func (c *Client) EnqueueWarmResult(ctx context.Context, path string) (*asynq.TaskInfo, error) {
	task, err := NewWarmResultTask(WarmResultPayload{
		Path:        path,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(2*time.Hour),
	)
}

// QueueDepth reports the number of tasks in the warm queue. A queue that
// has never seen a task counts as empty.
func (c *Client) QueueDepth() (int, error) {
	info, err := c.inspector.GetQueueInfo(c.queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("inspect queue %s: %w", c.queue, err)
	}
	return info.Size, nil
}

func (c *Client) Close() error {
	clientErr := c.client.Close()
	inspectorErr := c.inspector.Close()
	if clientErr != nil {
		return clientErr
	}
	return inspectorErr
}
