package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache[int](time.Minute)
	defer c.Stop()

	c.Set("a", 1)

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[string](time.Minute)
	defer c.Stop()

	c.SetWithTTL("a", "x", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := NewCache[int](time.Minute)
	defer c.Stop()

	c.Set("room:a", 1)
	c.Set("room:b", 2)
	c.Set("other", 3)

	c.Invalidate("room:")

	if _, ok := c.Get("room:a"); ok {
		t.Error("expected room:a invalidated")
	}
	if _, ok := c.Get("other"); !ok {
		t.Error("expected other to survive")
	}
}

func TestWithFallback_GetOrSet(t *testing.T) {
	c := NewWithFallback[int](time.Minute)
	defer c.Stop()

	calls := atomic.Int32{}
	fallback := func(context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		v, err := c.GetOrSet(ctx, "k", fallback, time.Minute)
		if err != nil {
			t.Fatalf("GetOrSet failed: %v", err)
		}
		if v != 42 {
			t.Fatalf("GetOrSet = %d, want 42", v)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("fallback called %d times, want 1", calls.Load())
	}
}

func TestWithFallback_ErrorNotCached(t *testing.T) {
	c := NewWithFallback[int](time.Minute)
	defer c.Stop()

	calls := 0
	fallback := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}
		return 7, nil
	}

	ctx := context.Background()
	if _, err := c.GetOrSet(ctx, "k", fallback, time.Minute); err == nil {
		t.Fatal("expected first call to fail")
	}
	v, err := c.GetOrSet(ctx, "k", fallback, time.Minute)
	if err != nil || v != 7 {
		t.Fatalf("expected retry after error, got %d, %v", v, err)
	}
}

func TestWithFallback_ConcurrentSingleCall(t *testing.T) {
	c := NewWithFallback[int](time.Minute)
	defer c.Stop()

	calls := atomic.Int32{}
	fallback := func(context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrSet(context.Background(), "k", fallback, time.Minute)
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fallback called %d times under contention, want 1", calls.Load())
	}
}
