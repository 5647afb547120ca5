// Package cache wraps the Redis connection used for message ingest and
// operator alert fan-out.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fairguard/backend/internal/platform"
	"github.com/redis/go-redis/v9"
)

// AlertChannel carries operator alerts between engine instances
const AlertChannel = "moderation:alerts"

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// PublishMessage publishes an inbound chat message for moderation
func (r *RedisClient) PublishMessage(ctx context.Context, channel string, msg platform.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// SubscribeToMessages subscribes to the ingest channel. The subscription
// is confirmed before returning, so no message published afterwards is
// missed.
func (r *RedisClient) SubscribeToMessages(ctx context.Context, channel string) (*redis.PubSub, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return ps, nil
}

// PublishAlert publishes an encoded operator alert
func (r *RedisClient) PublishAlert(ctx context.Context, data []byte) error {
	return r.client.Publish(ctx, AlertChannel, data).Err()
}

// SubscribeToAlerts subscribes to the alert fan-out channel
func (r *RedisClient) SubscribeToAlerts(ctx context.Context) (*redis.PubSub, error) {
	return r.SubscribeToMessages(ctx, AlertChannel)
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
