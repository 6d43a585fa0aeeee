package sietch

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

type cachedValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache[cachedValue](time.Minute)
	now := fixedNow
	c.now = func() time.Time { return now }

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.Set(ctx, "k", &cachedValue{Name: "graph", Count: 3}); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got.Count != 3 {
		t.Fatalf("unexpected hit: %+v %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = c.Set(ctx, "k", &cachedValue{})
	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LAZARUS_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, addr, "", 1)
	if err != nil {
		t.Skip("Redis not available for testing:", err)
	}
	defer client.Close()

	c := NewRedisCache[cachedValue](client, time.Minute, "lazarus:test:")
	defer c.Delete(ctx, "k")

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.Set(ctx, "k", &cachedValue{Name: "graph", Count: 2}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "graph" || got.Count != 2 {
		t.Errorf("unexpected value: %+v", got)
	}
	if err := c.Set(ctx, "k", nil); err == nil {
		t.Error("expected error for nil value")
	}
}
