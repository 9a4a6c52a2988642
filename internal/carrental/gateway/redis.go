package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const intentKey = "PAYMENT:INTENT:%s"

// RedisIntentStore keeps intents as JSON values whose TTL is the intent's
// remaining lifetime.
type RedisIntentStore struct {
	client redis.UniversalClient
}

// NewRedisIntentStore creates a store backed by client
func NewRedisIntentStore(client redis.UniversalClient) *RedisIntentStore {
	return &RedisIntentStore{client: client}
}

// NewRedisClient connects to a single Redis node and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Save writes intent with a TTL matching its expiry
func (s *RedisIntentStore) Save(ctx context.Context, intent *Intent) error {
	ttl := time.Until(intent.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("payment intent %s already expired", intent.ID)
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, fmt.Sprintf(intentKey, intent.ID), data, ttl).Err()
}

// Get loads the intent with id; an expired key reads as ErrIntentNotFound
func (s *RedisIntentStore) Get(ctx context.Context, id string) (*Intent, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(intentKey, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent %s: %w", id, err)
	}
	return &intent, nil
}

// Delete removes the intent and reports whether the key existed
func (s *RedisIntentStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, fmt.Sprintf(intentKey, id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
