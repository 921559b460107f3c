package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	ns := "suggestions"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, ns, "accounts:1", []byte(`["A","B"]`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, ns, "accounts:1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != `["A","B"]` {
			t.Errorf("unexpected value %q", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, ns, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got %v", val)
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "ns-a", "k", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "ns-b", "k", []byte("b"), time.Minute)

		a, _ := cache.Get(ctx, "ns-a", "k")
		b, _ := cache.Get(ctx, "ns-b", "k")
		if string(a) != "a" || string(b) != "b" {
			t.Errorf("namespaces collided: %q %q", a, b)
		}
	})

	t.Run("NamespaceRequired", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "k"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := cache.Set(ctx, "", "k", nil, 0); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, ns, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, ns, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, ns, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})
}

func TestLRUCacheExpiry(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_ = cache.Set(ctx, "ns", "short", []byte("temp"), time.Second)
	_ = cache.Set(ctx, "ns", "forever", []byte("kept"), 0)

	if val, _ := cache.Get(ctx, "ns", "short"); string(val) != "temp" {
		t.Error("expected value before expiry")
	}

	now = now.Add(2 * time.Second)

	if val, _ := cache.Get(ctx, "ns", "short"); val != nil {
		t.Error("expected expired value to be gone")
	}
	if val, _ := cache.Get(ctx, "ns", "forever"); string(val) != "kept" {
		t.Error("expected zero-ttl value to persist")
	}

	st := cache.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Size != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_ = cache.Set(ctx, "ns", fmt.Sprintf("k%d", i), []byte{byte(i)}, time.Minute)
	}

	// Touch k1 so k2 becomes least recently used
	_, _ = cache.Get(ctx, "ns", "k1")
	_ = cache.Set(ctx, "ns", "k4", []byte{4}, time.Minute)

	if val, _ := cache.Get(ctx, "ns", "k2"); val != nil {
		t.Error("expected k2 to be evicted")
	}
	for _, k := range []string{"k1", "k3", "k4"} {
		if val, _ := cache.Get(ctx, "ns", k); val == nil {
			t.Errorf("expected %s to survive", k)
		}
	}
	if st := cache.Stats(); st.Size != 3 || st.Capacity != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func setupRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCache(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := rc.Set(ctx, "suggestions", "accounts:1", []byte("x"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if !mr.Exists("kestrel:suggestions:accounts:1") {
			t.Error("expected prefixed key in redis")
		}
		val, err := rc.Get(ctx, "suggestions", "accounts:1")
		if err != nil || string(val) != "x" {
			t.Errorf("unexpected get: %q, %v", val, err)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		val, err := rc.Get(ctx, "suggestions", "missing")
		if err != nil || val != nil {
			t.Errorf("expected clean miss, got %q, %v", val, err)
		}
	})

	t.Run("TTL", func(t *testing.T) {
		_ = rc.Set(ctx, "suggestions", "ttl", []byte("y"), time.Second)
		mr.FastForward(2 * time.Second)
		if val, _ := rc.Get(ctx, "suggestions", "ttl"); val != nil {
			t.Error("expected key to expire")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = rc.Set(ctx, "suggestions", "del", []byte("z"), time.Minute)
		if err := rc.Delete(ctx, "suggestions", "del"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if mr.Exists("kestrel:suggestions:del") {
			t.Error("expected key to be removed")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := rc.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	rc, mr := setupRedis(t)
	ctx := context.Background()
	local := NewLRUCache(10)
	c := newTwoPhase(local, rc, time.Minute)

	t.Run("WriteThrough", func(t *testing.T) {
		if err := c.Set(ctx, "ns", "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if l1, _ := local.Get(ctx, "ns", "k"); string(l1) != "v" {
			t.Error("expected value in L1")
		}
		if got, _ := mr.Get("kestrel:ns:k"); got != "v" {
			t.Errorf("expected value in L2, got %q", got)
		}
	})

	t.Run("L2Backfill", func(t *testing.T) {
		if err := mr.Set("kestrel:ns:remote", "r"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		val, err := c.Get(ctx, "ns", "remote")
		if err != nil || string(val) != "r" {
			t.Fatalf("unexpected get: %q, %v", val, err)
		}
		if l1, _ := local.Get(ctx, "ns", "remote"); string(l1) != "r" {
			t.Error("expected L2 hit to populate L1")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "ns", "gone", []byte("g"), time.Hour)
		if err := c.Delete(ctx, "ns", "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "ns", "gone"); val != nil {
			t.Error("expected key removed from both layers")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("TwoPhase", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr(), EnableTwoPhase: true})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*TwoPhaseCache); !ok {
			t.Errorf("expected *TwoPhaseCache, got %T", c)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
