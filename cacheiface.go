package nlock

import (
	"context"
	"io"
	"time"
)

// KeyValuePair is a generic key/value tuple, used by the MRU cache and by
// value payloads moving between the near-cache and the DHT tier.
type KeyValuePair[TK any, TV any] struct {
	Key   TK
	Value TV
}

// L2CacheType enumerates the kinds of L2 cache backing the near-cache tier.
type L2CacheType int

const (
	// NoL2Cache means no L2 caching; only the in-process L1 MRU is used.
	NoL2Cache L2CacheType = iota
	// InMemory is an in-process, sharded L2 cache (tests, single-node deployments).
	InMemory
	// RedisL2 is a Redis-backed L2 cache, shared across processes/nodes.
	RedisL2
)

// L2Cache is the cross-process cache interface used by the near-cache tier to
// publish/observe values and to externalize lock ownership (§6 Near cache,
// Cache). String key and interface{}/struct value are the supported shapes.
// Redis (redis.NewClient) and an in-memory sharded map both implement it.
type L2Cache interface {
	GetType() L2CacheType

	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Get's first return value signals whether the key was found.
	Get(ctx context.Context, key string) (bool, string, error)
	GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error)

	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error)

	Delete(ctx context.Context, keys []string) (bool, error)
	Ping(ctx context.Context) error

	// Formats a given string as a lock key.
	FormatLockKey(k string) string
	// CreateLockKeys allocates a fresh LockID per key.
	CreateLockKeys(keys ...string) []*LockKey

	// Lock attempts to claim ownership of every lock key, all-or-nothing in
	// effect (each key is tried independently but any miss fails the call).
	Lock(ctx context.Context, duration time.Duration, lockKeys ...*LockKey) (bool, error)
	IsLocked(ctx context.Context, lockKeys ...*LockKey) (bool, error)
	IsLockedByOthers(ctx context.Context, lockKeyNames ...string) (bool, error)
	// Unlock releases only the keys this caller actually owns (LockKey.IsLockOwner).
	Unlock(ctx context.Context, lockKeys ...*LockKey) error
}

// CloseableL2Cache is an L2Cache that owns a connection the caller must close.
type CloseableL2Cache interface {
	L2Cache
	io.Closer
}

// LockKey pairs a formatted cache key with the UUID used to claim it and a
// flag recording whether this process actually won the claim (and therefore
// is the one allowed to release it).
type LockKey struct {
	Key         string
	LockID      UUID
	IsLockOwner bool
}
