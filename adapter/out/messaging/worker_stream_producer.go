// Package messaging provides the Redis Streams job queue for rules passes.
package messaging

import (
	"context"
	"fmt"

	"crm_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// maxStreamLen caps each stream so an idle worker cannot grow Redis unbounded.
const maxStreamLen = 10000

// RedisProducer implements out.JobProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

func (p *RedisProducer) PublishProcessEmail(ctx context.Context, job *out.ProcessEmailJob) error {
	return p.publish(ctx, out.StreamRulesProcessEmail, job)
}

func (p *RedisProducer) PublishReprocess(ctx context.Context, job *out.ReprocessJob) error {
	return p.publish(ctx, out.StreamRulesReprocess, job)
}

func (p *RedisProducer) PublishProcessInbox(ctx context.Context, job *out.ProcessInboxJob) error {
	return p.publish(ctx, out.StreamRulesProcessInbox, job)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

var _ out.JobProducer = (*RedisProducer)(nil)
