package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryCache_HitsAfterFirstFetch(t *testing.T) {
	c := NewInMemoryCache()
	var calls int32
	fetch := func(context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return json.RawMessage(`{"a":1}`), nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "k", fetch)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(v) != `{"a":1}` {
			t.Fatalf("Get = %s, want {\"a\":1}", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one fetch on repeated hits, got %d", calls)
	}
}

func TestSharedBufferCache_DedupesConcurrentFetch(t *testing.T) {
	c := NewSharedBufferCache()
	var calls int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.Get(context.Background(), "shared-key", func(context.Context) (json.RawMessage, error) {
				atomic.AddInt32(&calls, 1)
				return json.RawMessage(`{"ok":true}`), nil
			})
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected the fetcher to run exactly once across concurrent callers, got %d", calls)
	}
}
