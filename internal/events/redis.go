package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStream appends events to a Redis stream with XADD, trimming it to
// roughly maxLen entries.
type RedisStream struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStream creates a stream publisher. maxLen <= 0 disables trimming.
func NewRedisStream(rdb redis.Cmdable, stream string, maxLen int64) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisStream) Publish(ctx context.Context, e Event) error {
	args, err := s.xaddArgs(e)
	if err != nil {
		return err
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStream) xaddArgs(e Event) (*redis.XAddArgs, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        e.ID,
			"type":      string(e.Type),
			"market_id": e.MarketID,
			"ticker":    e.Ticker,
			"event":     string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args, nil
}
