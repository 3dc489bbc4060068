package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventDeduper remembers delivered event ids so that at-least-once
// redelivery does not notify twice.
type EventDeduper interface {
	firstDelivery(ctx context.Context, eventId string) bool
}

type RedisEventDeduper struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisEventDeduper(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisEventDeduper {
	return &RedisEventDeduper{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "event_deduper").Logger(),
	}
}

func dedupKey(eventId string) string {
	return fmt.Sprintf("simplechat:event:%s", eventId)
}

// firstDelivery fails open: if redis is unavailable the event is processed.
func (d *RedisEventDeduper) firstDelivery(ctx context.Context, eventId string) bool {
	first, err := d.client.SetNX(ctx, dedupKey(eventId), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		d.logger.Warn().Err(err).Str("event_id", eventId).Msg("dedup check failed")
		return true
	}
	return first
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
