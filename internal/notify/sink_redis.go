package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each event on a Redis channel named after its destination.
type RedisSink struct{ rdb *redis.Client }

func NewRedisSink(rdb *redis.Client) *RedisSink { return &RedisSink{rdb: rdb} }

func (s *RedisSink) Send(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Permanent(fmt.Errorf("encode event: %w", err))
	}
	return s.rdb.Publish(ctx, ev.Destination, raw).Err()
}
