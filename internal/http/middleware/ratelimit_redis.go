package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter - фиксированное окно в Redis, общее для всех реплик шлюза.
// Недоступность Redis не блокирует вход: лимитер пропускает запрос.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	if client == nil {
		return nil
	}

	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		prefix: "taskboard:ratelimit:",
	}
}

// NewRedisLimiterFromURL разбирает redis://... и создаёт лимитер.
func NewRedisLimiterFromURL(rawURL string) (*RedisLimiter, error) {
	const op = "middleware.NewRedisLimiterFromURL"

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewRedisLimiter(redis.NewClient(opts)), nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}

	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, ttl, limit).Int64()
	if err != nil {
		return true
	}

	return allowed == 1
}

// Ping - проверка готовности для /healthz.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}

	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}

	return l.client.Close()
}
