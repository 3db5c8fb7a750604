package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisConfig struct {
	// Either a redis:// URL or the individual connection parameters.
	URL      string `json:"url"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Prepended to every key.
	Prefix string `json:"prefix"`
}

type redisInvalidator struct {
	client *redis.Client
	prefix string
}

func newRedisInvalidator(jsonconf json.RawMessage) (*redisInvalidator, error) {
	var config redisConfig
	if len(jsonconf) == 0 {
		return nil, errors.New("cache: missing redis config")
	}
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("cache: failed to parse redis config: " + err.Error())
	}

	opt, err := config.options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &redisInvalidator{client: client, prefix: config.Prefix}, nil
}

func (c *redisConfig) options() (*redis.Options, error) {
	if c.URL != "" {
		opt, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("cache: redis url: %w", err)
		}
		return opt, nil
	}
	if c.Addr == "" {
		return nil, errors.New("cache: redis address not specified")
	}
	return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}, nil
}

func prefixed(prefix string, keys []string) []string {
	if prefix == "" {
		return keys
	}
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = prefix + key
	}
	return out
}

func (r *redisInvalidator) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, prefixed(r.prefix, keys)...).Err()
}

func (r *redisInvalidator) Close() error {
	return r.client.Close()
}
