package standings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds rendered-ready leaderboard rows between score changes.
type Cache interface {
	Get(ctx context.Context, seasonID int64) ([]Row, bool, error)
	Set(ctx context.Context, seasonID int64, rows []Row) error
	Invalidate(ctx context.Context, seasonID int64) error
}

// NoCache always misses.
type NoCache struct{}

func (NoCache) Get(context.Context, int64) ([]Row, bool, error) { return nil, false, nil }
func (NoCache) Set(context.Context, int64, []Row) error          { return nil }
func (NoCache) Invalidate(context.Context, int64) error          { return nil }

const keyPrefix = "rps:leaderboard:"

// RedisCache stores each season's rows as one JSON value with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func key(seasonID int64) string { return keyPrefix + strconv.FormatInt(seasonID, 10) }

func (c *RedisCache) Get(ctx context.Context, seasonID int64) ([]Row, bool, error) {
	raw, err := c.rdb.Get(ctx, key(seasonID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leaderboard cache get: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false, fmt.Errorf("leaderboard cache decode: %w", err)
	}
	return rows, true, nil
}

func (c *RedisCache) Set(ctx context.Context, seasonID int64, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(seasonID), b, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, seasonID int64) error {
	return c.rdb.Del(ctx, key(seasonID)).Err()
}

// OpenRedis connects to a redis:// or rediss:// URL and pings it.
func OpenRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
