// Package redisdirectory provides a Redis-backed sessions.Directory so that
// several server instances share one view of open sessions.
package redisdirectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/transcripter-mcp/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed directory. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=transcripter:sessions:"`
}

// Directory implements sessions.Directory with one expiring key per session.
type Directory struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Directory, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg.KeyPrefix), nil
}

// NewFromEnv builds a Directory using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Directory, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return New(ctx, cfg)
}

// NewWithClient wraps an existing client. The Directory takes ownership and
// closes it on Close.
func NewWithClient(cl *redis.Client, keyPrefix string) *Directory {
	if keyPrefix == "" {
		keyPrefix = "transcripter:sessions:"
	}
	return &Directory{client: cl, keyPrefix: keyPrefix}
}

// Close closes the Redis client.
func (d *Directory) Close() error { return d.client.Close() }

func (d *Directory) entryKey(id string) string { return d.keyPrefix + "entry:" + id }

func (d *Directory) Register(ctx context.Context, e sessions.Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	if err := d.client.Set(ctx, d.entryKey(e.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("register session %s: %w", e.ID, err)
	}
	return nil
}

func (d *Directory) Touch(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := d.client.Expire(ctx, d.entryKey(id), ttl).Result()
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if !ok {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (d *Directory) Unregister(ctx context.Context, id string) error {
	if err := d.client.Del(ctx, d.entryKey(id)).Err(); err != nil {
		return fmt.Errorf("unregister session %s: %w", id, err)
	}
	return nil
}

func (d *Directory) Lookup(ctx context.Context, id string) (*sessions.Entry, error) {
	b, err := d.client.Get(ctx, d.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session %s: %w", id, err)
	}
	var e sessions.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("unmarshal session entry: %w", err)
	}
	return &e, nil
}

// Count scans the entry keyspace. SCAN is used to avoid blocking Redis.
func (d *Directory) Count(ctx context.Context) (int, error) {
	var cursor uint64
	// SCAN may return a key more than once while the keyspace changes.
	seen := make(map[string]struct{})
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.keyPrefix+"entry:*", 200).Result()
		if err != nil {
			return 0, fmt.Errorf("count sessions: %w", err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			return len(seen), nil
		}
	}
}

var _ sessions.Directory = (*Directory)(nil)
