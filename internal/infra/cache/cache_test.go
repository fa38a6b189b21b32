package cache_test

import (
	"testing"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[float64](5 * time.Minute)
	defer c.Stop()

	c.Set("dashboard:open-proposals", 1250.5)
	val, ok := c.Get("dashboard:open-proposals")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != 1250.5 {
		t.Errorf("expected 1250.5, got %v", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Stop()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Stop()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Stop()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_Clear(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be cleared")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be cleared")
	}
}

func TestCache_StopIsIdempotent(t *testing.T) {
	c := cache.New[int](10 * time.Millisecond)
	c.Stop()
	c.Stop()

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected cache to keep working after Stop, got %v, %v", v, ok)
	}
}
