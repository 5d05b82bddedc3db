// Package publish mirrors freshly stored snapshots into a redis hash so other
// processes can read the latest price per asset without querying the store.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptoMonitor/internal/model"
)

const DefaultPrefix = "cryptomonitor"

// RedisOptions describes how to reach the redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisPublisher upserts one JSON entry per asset into <prefix>:latest.
type RedisPublisher struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string
	now       func() time.Time
}

type latestEntry struct {
	model.Snapshot
	PublishedAt time.Time `json:"published_at"`
}

// Dial connects to redis and verifies the connection with PING.
func Dial(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisPublisher(rdb, opts.Prefix, opts.TTL), nil
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(rdb *redis.Client, prefix string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: LatestKey(prefix),
		now:       time.Now,
	}
}

// LatestKey returns the hash key holding the latest snapshot per asset.
func LatestKey(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":latest"
}

// Key returns the hash key this publisher writes to.
func (p *RedisPublisher) Key() string {
	return p.keyLatest
}

// Publish stores snap under its asset id, replacing the previous entry.
func (p *RedisPublisher) Publish(ctx context.Context, snap model.Snapshot) error {
	b, err := encodeLatest(snap, p.now())
	if err != nil {
		return fmt.Errorf("encode latest %s: %w", snap.AssetID, err)
	}

	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.keyLatest, snap.AssetID, string(b))
	if p.ttl > 0 {
		pipe.Expire(ctx, p.keyLatest, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish latest %s: %w", snap.AssetID, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

func encodeLatest(snap model.Snapshot, publishedAt time.Time) ([]byte, error) {
	return json.Marshal(latestEntry{Snapshot: snap, PublishedAt: publishedAt.UTC()})
}
