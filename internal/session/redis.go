package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hpungsan/leadcap/internal/contact"
)

// DefaultRedisTTL bounds how long an idle session survives in Redis.
const DefaultRedisTTL = 24 * time.Hour

// RedisBackend stores each session as a hash of values plus a list of
// JSON-encoded transcript messages. Both expire after TTL of inactivity.
type RedisBackend struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisBackend connects to addr and verifies the connection.
func NewRedisBackend(addr string, ttl time.Duration) (*RedisBackend, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBackendWithClient(client, ttl), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *goredis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func valuesKey(sessionID string) string     { return "leadcap:session:" + sessionID }
func transcriptKey(sessionID string) string { return "leadcap:transcript:" + sessionID }

func (b *RedisBackend) Get(ctx context.Context, sessionID string, key Key) (string, bool, error) {
	v, err := b.client.HGet(ctx, valuesKey(sessionID), string(key)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return v, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, sessionID string, key Key, value string) error {
	k := valuesKey(sessionID)
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, k, string(key), value)
	pipe.Expire(ctx, k, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, sessionID string, key Key) error {
	if err := b.client.HDel(ctx, valuesKey(sessionID), string(key)).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (b *RedisBackend) Append(ctx context.Context, sessionID string, m contact.Message) error {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	k := transcriptKey(sessionID)
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, k, payload)
	pipe.Expire(ctx, k, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (b *RedisBackend) Transcript(ctx context.Context, sessionID string) ([]contact.Message, error) {
	raw, err := b.client.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]contact.Message, 0, len(raw))
	for _, item := range raw {
		var m contact.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode transcript message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
