package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "sf"

// key spaces
const (
	spaceIdempotency = "idempotency"
	spaceStripeEvent = "stripe_event"
	spaceLock        = "lock"
)

// windowCounterScript starts the TTL on the first hit inside the same call,
// so a counter can never outlive its window.
const windowCounterScript = `
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n`

const deleteIfValueScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`

// swapIfValueScript replaces the value and TTL only while the key still holds
// the expected value.
const swapIfValueScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0`

var errNotInitialized = errors.New("redis client not initialized")

type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client is the storefront's Redis handle: idempotency records, Stripe
// event markers, auth rate-limit counters and the cron lock.
type Client struct {
	cmd  commands
	conn *redis.Client
}

// IdempotencyStore is what the Idempotency-Key middleware needs.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	SwapIfValue(ctx context.Context, key, expect, next string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// New dials Redis from cfg and fails fast when the server is unreachable.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	}
	return &Client{cmd: conn, conn: conn}, nil
}

// optionsFromConfig lets a URL win over discrete settings; pool sizing and
// timeouts from cfg fill whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	url := strings.TrimSpace(cfg.URL)
	addr := strings.TrimSpace(cfg.Address)
	if url == "" && addr == "" {
		return nil, errors.New("redis url or address is required")
	}

	opts := &redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}
	if url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	}

	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Lookup reads key. A missing key is reported through found, not as an error.
func (c *Client) Lookup(ctx context.Context, key string) (value string, found bool, err error) {
	if c == nil || c.cmd == nil {
		return "", false, errNotInitialized
	}
	value, err = c.cmd.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return value, true, nil
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, errNotInitialized
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

// IncrWithTTL bumps the counter at key and returns the new count. The first
// increment starts a ttl-long window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c == nil || c.cmd == nil {
		return 0, errNotInitialized
	}
	return c.cmd.Eval(ctx, windowCounterScript, []string{key}, ttl.Milliseconds()).Int64()
}

// DeleteIfValue removes key only while it still holds value and reports
// whether it did.
func (c *Client) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, errNotInitialized
	}
	n, err := c.cmd.Eval(ctx, deleteIfValueScript, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SwapIfValue sets key to next with a fresh ttl, but only while it still
// holds expect. It reports whether the swap happened.
func (c *Client) SwapIfValue(ctx context.Context, key, expect, next string, ttl time.Duration) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, errNotInitialized
	}
	n, err := c.cmd.Eval(ctx, swapIfValueScript, []string{key}, expect, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IdempotencyKey namespaces a client-supplied Idempotency-Key by route scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(spaceIdempotency, scope, id)
}

func (c *Client) StripeEventKey(eventID string) string {
	return buildKey(spaceStripeEvent, eventID)
}

func (c *Client) LockKey(name string) string {
	return buildKey(spaceLock, name)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.cmd == nil {
		return errNotInitialized
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func buildKey(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}
