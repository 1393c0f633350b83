package policy

import (
	"context"
	"sync"
	"time"
)

// ActorResolver loads the acting user's role and teacher link by user ID.
type ActorResolver interface {
	Resolve(ctx context.Context, userID uint) (Actor, error)
}

// ResolverFunc adapts a function to ActorResolver.
type ResolverFunc func(ctx context.Context, userID uint) (Actor, error)

// Resolve implements ActorResolver.
func (f ResolverFunc) Resolve(ctx context.Context, userID uint) (Actor, error) {
	return f(ctx, userID)
}

// CachedResolver wraps an ActorResolver with a TTL cache so role checks do
// not hit the database on every request.
type CachedResolver struct {
	inner ActorResolver
	ttl   time.Duration
	mu    sync.RWMutex
	cache map[uint]actorEntry
}

type actorEntry struct {
	actor     Actor
	expiresAt time.Time
}

// NewCachedResolver wraps inner; ttl <= 0 disables caching.
func NewCachedResolver(inner ActorResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, ttl: ttl, cache: make(map[uint]actorEntry)}
}

// Resolve returns the cached actor for userID or asks the inner resolver.
func (r *CachedResolver) Resolve(ctx context.Context, userID uint) (Actor, error) {
	if r.ttl > 0 {
		r.mu.RLock()
		e, ok := r.cache[userID]
		r.mu.RUnlock()
		if ok && time.Now().Before(e.expiresAt) {
			return e.actor, nil
		}
	}

	a, err := r.inner.Resolve(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[userID] = actorEntry{actor: a, expiresAt: time.Now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return a, nil
}

// Invalidate drops userID from the cache. Call it after role or teacher link changes.
func (r *CachedResolver) Invalidate(userID uint) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll clears the cache.
func (r *CachedResolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[uint]actorEntry)
	r.mu.Unlock()
}
