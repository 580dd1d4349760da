package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/docchat/config"
)

// AnswerCache memoizes chat answers in redis, keyed by session, question
// and an ingest version counter. Every ingest bumps the session's
// version, which invalidates all cached answers for that session without
// scanning keys. A nil *AnswerCache is a no-op, so the cache can be left
// unconfigured.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// CachedAnswer is the stored shape of one memoized chat response.
type CachedAnswer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Tier    string   `json:"tier"`
}

// New connects to redis per config. An empty Addr disables the cache.
func New(cfg config.RedisConfig) *AnswerCache {
	if cfg.Addr == "" {
		return nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &AnswerCache{client: client, ttl: ttl}
}

// Ping verifies the redis connection.
func (c *AnswerCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *AnswerCache) version(ctx context.Context, sessionID string) int64 {
	v, err := c.client.Get(ctx, "docchat:ver:"+sessionID).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *AnswerCache) key(ctx context.Context, sessionID, question string) string {
	sum := sha256.Sum256([]byte(question))
	return fmt.Sprintf("docchat:ans:%s:%d:%s", sessionID, c.version(ctx, sessionID), hex.EncodeToString(sum[:16]))
}

// Get returns the cached answer for the question, if any. Cache errors
// degrade to a miss.
func (c *AnswerCache) Get(ctx context.Context, sessionID, question string) (*CachedAnswer, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(ctx, sessionID, question)).Bytes()
	if err != nil {
		return nil, false
	}
	var ans CachedAnswer
	if err := json.Unmarshal(raw, &ans); err != nil {
		return nil, false
	}
	return &ans, true
}

// Set stores an answer under the session's current ingest version.
func (c *AnswerCache) Set(ctx context.Context, sessionID, question string, ans CachedAnswer) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(ans)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(ctx, sessionID, question), raw, c.ttl).Err()
}

// Bump invalidates every cached answer for the session by advancing its
// ingest version. Called after each successful document ingest.
func (c *AnswerCache) Bump(ctx context.Context, sessionID string) {
	if c == nil {
		return
	}
	_ = c.client.Incr(ctx, "docchat:ver:"+sessionID).Err()
}

// Close releases the redis connection.
func (c *AnswerCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
