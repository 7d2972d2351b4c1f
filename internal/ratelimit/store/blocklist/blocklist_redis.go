package blocklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blockPrefix  = "ratelimit:blocked:"
	whitelistKey = "ratelimit:whitelist"
)

// Redis shares block and whitelist state across instances. Block expiry
// rides on key TTLs, so lifted blocks clean themselves up.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Block(ctx context.Context, ip, reason string, d time.Duration) error {
	if err := r.client.Set(ctx, blockPrefix+ip, reason, d).Err(); err != nil {
		return fmt.Errorf("block ip %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := r.client.Exists(ctx, blockPrefix+ip).Result()
	if err != nil {
		return false, fmt.Errorf("check blocked ip %s: %w", ip, err)
	}
	return n > 0, nil
}

func (r *Redis) Unblock(ctx context.Context, ip string) error {
	if err := r.client.Del(ctx, blockPrefix+ip).Err(); err != nil {
		return fmt.Errorf("unblock ip %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) Blocked(ctx context.Context) ([]BlockedIP, error) {
	var out []BlockedIP

	iter := r.client.Scan(ctx, 0, blockPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ip := strings.TrimPrefix(key, blockPrefix)

		pipe := r.client.Pipeline()
		reasonCmd := pipe.Get(ctx, key)
		ttlCmd := pipe.TTL(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, fmt.Errorf("read block %s: %w", ip, err)
		}
		ttl := ttlCmd.Val()
		if ttl <= 0 {
			// Expired between scan and read.
			continue
		}
		out = append(out, BlockedIP{
			IP:        ip,
			Reason:    reasonCmd.Val(),
			ExpiresAt: time.Now().Add(ttl),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan blocked ips: %w", err)
	}
	return out, nil
}

func (r *Redis) AddWhitelist(ctx context.Context, ip string) error {
	if err := r.client.SAdd(ctx, whitelistKey, ip).Err(); err != nil {
		return fmt.Errorf("whitelist ip %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) RemoveWhitelist(ctx context.Context, ip string) error {
	if err := r.client.SRem(ctx, whitelistKey, ip).Err(); err != nil {
		return fmt.Errorf("unwhitelist ip %s: %w", ip, err)
	}
	return nil
}

func (r *Redis) IsWhitelisted(ctx context.Context, ip string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, whitelistKey, ip).Result()
	if err != nil {
		return false, fmt.Errorf("check whitelist %s: %w", ip, err)
	}
	return ok, nil
}

func (r *Redis) Whitelisted(ctx context.Context) ([]string, error) {
	ips, err := r.client.SMembers(ctx, whitelistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	return ips, nil
}
