package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Short lived keys (reset codes, OAuth states, revoked tokens, captchas) live
// in Redis and fall back to process memory when Redis is unavailable. The
// memory fallback is only correct for a single instance.

type memEntry struct {
	value     string
	expiresAt time.Time
}

var (
	memKV   = map[string]memEntry{}
	memKVMu sync.Mutex
)

const kvTimeout = 2 * time.Second

func memGet(key string, take bool) (string, bool) {
	memKVMu.Lock()
	defer memKVMu.Unlock()
	e, ok := memKV[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		delete(memKV, key)
		return "", false
	}
	if take {
		delete(memKV, key)
	}
	return e.value, true
}

func memSet(key, value string, ttl time.Duration, onlyIfAbsent bool) bool {
	memKVMu.Lock()
	defer memKVMu.Unlock()
	if onlyIfAbsent {
		if e, ok := memKV[key]; ok && time.Now().Before(e.expiresAt) {
			return false
		}
	}
	memKV[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return true
}

// KVSet stores value under key for ttl.
func KVSet(key, value string, ttl time.Duration) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
		defer cancel()
		if err := rc.Set(ctx, key, value, ttl).Err(); err == nil {
			return
		}
	}
	memSet(key, value, ttl, false)
}

// KVSetNX stores value only when key is absent and reports whether it did.
func KVSetNX(key, value string, ttl time.Duration) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
		defer cancel()
		if ok, err := rc.SetNX(ctx, key, value, ttl).Result(); err == nil {
			return ok
		}
	}
	return memSet(key, value, ttl, true)
}

// KVGet returns the value under key.
func KVGet(key string) (string, bool) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
		defer cancel()
		v, err := rc.Get(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if errors.Is(err, redis.Nil) {
			return memGet(key, false)
		}
	}
	return memGet(key, false)
}

// KVTake returns and deletes the value under key so it can be used once.
func KVTake(key string) (string, bool) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
		defer cancel()
		v, err := rc.GetDel(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if !errors.Is(err, redis.Nil) {
			// GETDEL needs Redis 6.2; older servers get the script
			script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
			if res, err := rc.Eval(ctx, script, []string{key}).Result(); err == nil {
				if s, ok := res.(string); ok {
					return s, true
				}
			} else if errors.Is(err, redis.Nil) {
				return memGet(key, true)
			}
		}
	}
	return memGet(key, true)
}
