package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/deptcms/config"
)

func contactKey(parts ...string) string {
	return "contact:" + strings.Join(parts, ":")
}

// ContactCooldownTry enforces a short cooldown between submissions per IP.
// It fails open when Redis is unreachable.
func ContactCooldownTry(ip string) bool {
	sec := config.Get().ContactCooldownSec
	if sec <= 0 {
		return true
	}
	cli := GetRedis()
	if cli == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := cli.SetNX(ctx, contactKey("cooldown", ip), "1", time.Duration(sec)*time.Second).Result()
	if err != nil {
		return true
	}
	return ok
}

// ContactDailyLimitCheck allows up to N messages per day per IP.
func ContactDailyLimitCheck(ip string) bool {
	limit := config.Get().ContactMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	cli := GetRedis()
	if cli == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := cli.Get(ctx, contactKey("day", ip, time.Now().Format("20060102"))).Int()
	if errors.Is(err, redis.Nil) {
		n = 0
	} else if err != nil {
		return true
	}
	return n < limit
}

// ContactDailyIncrement counts an accepted message for today.
func ContactDailyIncrement(ip string) {
	cli := GetRedis()
	if cli == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	key := contactKey("day", ip, time.Now().Format("20060102"))
	if err := cli.Incr(ctx, key).Err(); err == nil {
		ttl := time.Until(time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour))
		_ = cli.Expire(ctx, key, ttl).Err()
	}
}
