package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vignette/internal/models"
)

const defaultKeyPrefix = "vignette"

// RedisOptions configures the Redis index.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// Redis stores derivative references in one hash per image so that
// invalidating every preset of an image is a single DEL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisFromClient(client, opts.TTL, opts.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, imageID, preset string) (*models.Derivative, bool, error) {
	data, err := r.client.HGet(ctx, r.key(imageID), preset).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var d models.Derivative
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, false, fmt.Errorf("decode cached derivative: %w", err)
	}
	return &d, true, nil
}

func (r *Redis) Set(ctx context.Context, d models.Derivative) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := r.key(d.ImageID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, d.Preset, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, imageID string, presets ...string) error {
	if len(presets) == 0 {
		return r.client.Del(ctx, r.key(imageID)).Err()
	}
	return r.client.HDel(ctx, r.key(imageID), presets...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(imageID string) string {
	return fmt.Sprintf("%s:derivatives:%s", r.prefix, imageID)
}
