package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(time.Minute)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	t.Run("string", func(t *testing.T) {
		if err := cache.Set(ctx, "k1", "value", time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		var got string
		if err := cache.Get(ctx, "k1", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != "value" {
			t.Errorf("Get() = %q, want %q", got, "value")
		}
	})

	t.Run("classification result", func(t *testing.T) {
		want := domain.ClassificationResult{
			CanonicalName: "Serum bí đao 70ml",
			BundleLabel:   domain.BundleSingle,
			CategoryTop:   "Dưỡng da",
			CategorySub:   "Serum",
		}
		if err := cache.Set(ctx, "k2", want, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		var got domain.ClassificationResult
		if err := cache.Get(ctx, "k2", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != want {
			t.Errorf("Get() = %+v, want %+v", got, want)
		}
	})

	t.Run("stored values are copies", func(t *testing.T) {
		value := []string{"a", "b"}
		if err := cache.Set(ctx, "k3", value, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		value[0] = "mutated"

		var got []string
		if err := cache.Get(ctx, "k3", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got[0] != "a" {
			t.Errorf("Get()[0] = %q, want %q", got[0], "a")
		}
	})
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "short", "value", time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	var got string
	if err := cache.Get(ctx, "short", &got); !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want %v", err, domain.ErrCacheMiss)
	}
	if exists, _ := cache.Exists(ctx, "short"); exists {
		t.Errorf("Exists() = true, want false after expiration")
	}

	// zero TTL never expires
	if err := cache.Set(ctx, "forever", "value", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if exists, _ := cache.Exists(ctx, "forever"); !exists {
		t.Errorf("Exists() = false, want true for zero TTL")
	}
}

func TestMemoryCache_Get_CacheMiss(t *testing.T) {
	cache := newTestCache(t)

	var got string
	err := cache.Get(context.Background(), "non-existent-key", &got)
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "delete-test", "value", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Delete(ctx, "delete-test"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	var got string
	if err := cache.Get(ctx, "delete-test", &got); !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_SizeAndClear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cache.Set(ctx, string(rune('a'+i)), i, time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if size := cache.Size(); size != 5 {
		t.Errorf("Size() = %d, want 5", size)
	}

	cache.Clear()

	if size := cache.Size(); size != 0 {
		t.Errorf("Size() = %d, want 0 after clear", size)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := string(rune('a' + id))
			if err := cache.Set(ctx, key, id, time.Minute); err != nil {
				t.Errorf("concurrent Set() error = %v", err)
			}
			var got int
			if err := cache.Get(ctx, key, &got); err != nil {
				t.Errorf("concurrent Get() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(time.Millisecond)

	if err := cache.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
