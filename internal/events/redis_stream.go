package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// DefaultStream 默认 Redis Stream
const DefaultStream = "facility:events"

// StreamPublisher 通过 XADD 发布到 Redis Streams
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher stream 为空时使用 DefaultStream
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream}
}

// Stream 目标 stream 名
func (p *StreamPublisher) Stream() string { return p.stream }

// Publish 字段：type / entity_type / entity_id / data(JSON) / timestamp
func (p *StreamPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	values := map[string]interface{}{
		"type":        e.Type,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"data":        string(data),
		"timestamp":   strconv.FormatInt(e.OccurredAt.Unix(), 10),
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}
