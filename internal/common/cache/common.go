package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// NullCacheValue marks a cached miss so absent rows do not hit the database repeatedly.
const NullCacheValue = "$NULL$"

// GetWithCached implements cache-aside with null value caching.
// Cache errors are ignored: a broken cache degrades to a database read.
//
// Example:
//
//	problem, err := GetWithCached(ctx, c, "problem:7", time.Hour, time.Minute,
//		func(p *Problem) bool { return p == nil },
//		marshalProblem, unmarshalProblem,
//		func(ctx context.Context) (*Problem, error) { return loadProblem(ctx, 7) })
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}
	if payload := marshal(data); payload != "" {
		_ = cache.Set(ctx, key, payload, ttl)
	}
	return data, nil
}

// JitterTTL shortens ttl by up to 10% so hot keys do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
