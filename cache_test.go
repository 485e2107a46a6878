package headlessblog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingLoader(calls *atomic.Int32) func(context.Context) (IndexData, error) {
	return func(context.Context) (IndexData, error) {
		n := calls.Add(1)
		return IndexData{Posts: PostConnection{Nodes: make([]Post, n)}}, nil
	}
}

func TestIndexCacheServesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	c := NewIndexCache(time.Minute, countingLoader(&calls))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Get(ctx)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(data.Posts.Nodes) != 1 {
			t.Errorf("got %d posts, want 1 from first load", len(data.Posts.Nodes))
		}
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
}

func TestIndexCacheReloadsAfterTTL(t *testing.T) {
	var calls atomic.Int32
	c := NewIndexCache(50*time.Millisecond, countingLoader(&calls))
	ctx := context.Background()

	if _, err := c.Get(ctx); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	data, err := c.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(data.Posts.Nodes) != 2 || calls.Load() != 2 {
		t.Errorf("expected a second load, calls = %d", calls.Load())
	}
}

func TestIndexCacheInvalidate(t *testing.T) {
	var calls atomic.Int32
	c := NewIndexCache(time.Hour, countingLoader(&calls))
	ctx := context.Background()

	_, _ = c.Get(ctx)
	c.Invalidate()
	_, _ = c.Get(ctx)
	if calls.Load() != 2 {
		t.Errorf("loader called %d times, want 2", calls.Load())
	}
}

func TestIndexCacheDoesNotStoreErrors(t *testing.T) {
	fail := true
	c := NewIndexCache(time.Hour, func(context.Context) (IndexData, error) {
		if fail {
			return IndexData{}, errors.New("boom")
		}
		return IndexData{Posts: PostConnection{Nodes: []Post{{ID: "p1"}}}}, nil
	})
	ctx := context.Background()

	if _, err := c.Get(ctx); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	data, err := c.Get(ctx)
	if err != nil || len(data.Posts.Nodes) != 1 {
		t.Fatalf("Get after recovery = %v, %v", data, err)
	}
}

func TestIndexCacheConcurrentGetLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	c := NewIndexCache(time.Minute, func(context.Context) (IndexData, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return IndexData{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(context.Background())
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
}

func TestIndexCacheLoadOutlivesCallerContext(t *testing.T) {
	var loadErr error
	c := NewIndexCache(time.Minute, func(ctx context.Context) (IndexData, error) {
		loadErr = ctx.Err()
		if _, ok := ctx.Deadline(); !ok {
			t.Error("load context has no deadline")
		}
		return IndexData{}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loadErr != nil {
		t.Errorf("load saw cancelled context: %v", loadErr)
	}
}
