package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zonia3000/regifair/internal/notifications"
	"github.com/zonia3000/regifair/internal/queue/redisclient"
)

// notificationsList is the redis list the API pushes to and the worker
// pops from. deadList collects payloads the worker gave up on.
const (
	notificationsList = "regifair:notifications"
	deadList          = "regifair:notifications:dead"
)

// Producer enqueues notifications for asynchronous delivery. Enqueue
// failures are reported to the caller but must not fail the request
// that triggered them; handlers log and move on.
type Producer struct {
	rdb *redis.Client
}

func NewProducer(c *redisclient.Client) *Producer {
	return &Producer{rdb: c.Raw()}
}

func (p *Producer) Enqueue(ctx context.Context, n notifications.Notification) error {
	payload, err := json.Marshal(n)

	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := p.rdb.LPush(ctx, notificationsList, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	return nil
}

// Depth returns the current queue length.
func (p *Producer) Depth(ctx context.Context) (int64, error) {
	return p.rdb.LLen(ctx, notificationsList).Result()
}
