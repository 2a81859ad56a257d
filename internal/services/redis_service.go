package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gateway-service/internal/database"
	"gateway-service/internal/gateway"
)

// RedisService backs presence tracking and distributed rate limiting when
// multiple gateway instances front the same client population.
type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{client: client}
}

// =============================================================================
// Presence
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]any{
		"status":     "online",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("user:%s:status", userID), 5*time.Minute)

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, fmt.Sprintf("user:%s:status", userID), map[string]any{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, "online_users").Result()
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit counts actions in a rolling window backed by a Redis sorted
// set. Entries older than the window are pruned, the remainder counted, and
// the current action recorded.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).Unix()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	results, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	count := results[1].(*redis.IntCmd).Val()

	return count < int64(limit), nil
}

// RedisRateLimiter adapts CheckRateLimit to the gateway's per-channel
// two-budget contract. Redis errors fail open with a log line so a cache
// outage degrades throttling rather than delivery.
type RedisRateLimiter struct {
	service *RedisService
}

func NewRedisRateLimiter(service *RedisService) *RedisRateLimiter {
	return &RedisRateLimiter{service: service}
}

// CheckAndConsume implements gateway.RateLimiter.
func (l *RedisRateLimiter) CheckAndConsume(connectionID string, channel *gateway.Channel) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if channel.MessagesPerMinute > 0 {
		key := fmt.Sprintf("rate_limit:%s:%s:minute", connectionID, channel.Name)
		allowed, err := l.service.CheckRateLimit(ctx, key, channel.MessagesPerMinute, time.Minute)
		if err != nil {
			slog.Warn("Rate limit check failed", "channel", channel.Name, "error", err)
			return true
		}
		if !allowed {
			return false
		}
	}
	if channel.MessagesPerHour > 0 {
		key := fmt.Sprintf("rate_limit:%s:%s:hour", connectionID, channel.Name)
		allowed, err := l.service.CheckRateLimit(ctx, key, channel.MessagesPerHour, time.Hour)
		if err != nil {
			slog.Warn("Rate limit check failed", "channel", channel.Name, "error", err)
			return true
		}
		if !allowed {
			return false
		}
	}
	return true
}

// Forget implements gateway.RateLimiter. Redis keys expire on their own.
func (l *RedisRateLimiter) Forget(connectionID string) {}
