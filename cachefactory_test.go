package nlock

import (
	"context"
	"testing"
	"time"
)

type mockL2Cache struct{}

func (m *mockL2Cache) GetType() L2CacheType { return RedisL2 }
func (m *mockL2Cache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return nil
}
func (m *mockL2Cache) Get(ctx context.Context, key string) (bool, string, error) {
	return false, "", nil
}
func (m *mockL2Cache) GetEx(ctx context.Context, key string, expiration time.Duration) (bool, string, error) {
	return false, "", nil
}
func (m *mockL2Cache) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (m *mockL2Cache) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	return false, nil
}
func (m *mockL2Cache) GetStructEx(ctx context.Context, key string, target interface{}, expiration time.Duration) (bool, error) {
	return false, nil
}
func (m *mockL2Cache) Delete(ctx context.Context, keys []string) (bool, error) { return true, nil }
func (m *mockL2Cache) Ping(ctx context.Context) error                         { return nil }
func (m *mockL2Cache) FormatLockKey(k string) string                          { return "L" + k }
func (m *mockL2Cache) CreateLockKeys(keys ...string) []*LockKey               { return nil }
func (m *mockL2Cache) Lock(ctx context.Context, duration time.Duration, lockKeys ...*LockKey) (bool, error) {
	return true, nil
}
func (m *mockL2Cache) IsLocked(ctx context.Context, lockKeys ...*LockKey) (bool, error) {
	return false, nil
}
func (m *mockL2Cache) IsLockedByOthers(ctx context.Context, lockKeyNames ...string) (bool, error) {
	return false, nil
}
func (m *mockL2Cache) Unlock(ctx context.Context, lockKeys ...*LockKey) error { return nil }

func TestCacheFactory_RegisterAndSelect(t *testing.T) {
	RegisterCacheFactory(RedisL2, func() L2Cache { return &mockL2Cache{} })

	if GetCacheFactoryType() == RedisL2 {
		t.Fatal("factory type should not be selected before SetCacheFactory")
	}

	SetCacheFactory(RedisL2)
	if GetCacheFactoryType() != RedisL2 {
		t.Fatalf("expected RedisL2 selected, got %v", GetCacheFactoryType())
	}

	c := NewCacheClient()
	if c == nil {
		t.Fatal("expected a non-nil cache client")
	}
	if c.GetType() != RedisL2 {
		t.Fatalf("expected client of type RedisL2, got %v", c.GetType())
	}
}

func TestCacheFactory_NoFactorySelected(t *testing.T) {
	globalCacheFactory = nil
	if NewCacheClient() != nil {
		t.Fatal("expected nil client when no factory is registered")
	}
}
