package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Cache key prefixes of public listings. Writers invalidate by prefix.
const (
	CachePostsPrefix     = "cache:posts:"
	CacheLabsPrefix      = "cache:labs:"
	CacheResourcesPrefix = "cache:res:"
	CacheSitePrefix      = "cache:site:"
)

const (
	cacheTimeout     = 2 * time.Second
	cacheFallbackTTL = time.Hour
	cacheScanBatch   = 500
)

// cachedEnvelope returns the stored response document for key.
func cachedEnvelope(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugw("cache miss", "key", key, "error", err)
		return nil, false
	}
	return b, true
}

func storeEnvelope(key string, resp JSONResponse, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		Sugar.Warnw("cache encode failed", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = cacheFallbackTTL
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnw("cache set failed", "key", key, "error", err)
	}
}

// ServeCached writes a cached success envelope for key. It reports false on a miss.
func ServeCached(ctx *gin.Context, key string) bool {
	b, ok := cachedEnvelope(key)
	if !ok {
		return false
	}
	ctx.Header("X-Cache", "HIT")
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
	return true
}

// SuccessCached answers with data and keeps the envelope under key for ttl.
// A zero ttl keeps it for an hour.
func SuccessCached(ctx *gin.Context, key string, data interface{}, ttl time.Duration) {
	resp := JSONResponse{Code: 0, Message: "success", Data: data}
	storeEnvelope(key, resp, ttl)
	ctx.JSON(http.StatusOK, resp)
}

// InvalidateByPrefix drops every cached document under prefix.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	batch := make([]string, 0, cacheScanBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := rc.Unlink(ctx, batch...).Err(); err != nil {
			Sugar.Warnw("cache invalidation failed", "prefix", prefix, "error", err)
		}
		batch = batch[:0]
	}
	it := rc.Scan(ctx, 0, prefix+"*", cacheScanBatch).Iterator()
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if len(batch) == cacheScanBatch {
			flush()
		}
	}
	flush()
	if err := it.Err(); err != nil {
		Sugar.Warnw("cache scan failed", "prefix", prefix, "error", err)
	}
}
