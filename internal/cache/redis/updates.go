package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"orderScope/internal/model"
)

// UpdateStream is the stream order updates are appended to.
const UpdateStream = "order-updates"

// streamMaxLen is the approximate stream length kept by XADD MAXLEN ~.
const streamMaxLen int64 = 100000

// UpdatePublisher appends order updates to a Redis stream.
type UpdatePublisher struct {
	rdb    *redis.Client
	stream string
}

func NewUpdatePublisher(c *Client, stream string) *UpdatePublisher {
	if stream == "" {
		stream = UpdateStream
	}
	return &UpdatePublisher{rdb: c.rdb, stream: stream}
}

// Publish appends every update in one pipeline.
func (p *UpdatePublisher) Publish(ctx context.Context, updates []model.OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, u := range updates {
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("redis: encode update %s: %w", u.OrderID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(payload)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", p.stream, err)
	}
	return nil
}
