package idempotency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTryBeginThenCommitDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	ok, err := store.TryBegin(ctx, "card:evt_1")
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	if err := store.Commit(ctx, "card:evt_1"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ok, err = store.TryBegin(ctx, "card:evt_1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("committed key claimed again")
	}
}

func TestReleaseMakesKeyRetryable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	if ok, _ := store.TryBegin(ctx, "card:evt_1"); !ok {
		t.Fatal("first claim refused")
	}
	if err := store.Release(ctx, "card:evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if ok, _ := store.TryBegin(ctx, "card:evt_1"); !ok {
		t.Fatal("released key not retryable")
	}
}

func TestInFlightKeyRefusesConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	if ok, _ := store.TryBegin(ctx, "card:evt_1"); !ok {
		t.Fatal("first claim refused")
	}
	if ok, _ := store.TryBegin(ctx, "card:evt_1"); ok {
		t.Fatal("in-flight key claimed twice")
	}
}

func TestBoundedEvictionIsOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("card:evt_%d", i)
		if ok, _ := store.TryBegin(ctx, key); !ok {
			t.Fatalf("claim %s refused", key)
		}
		if err := store.Commit(ctx, key); err != nil {
			t.Fatalf("commit %s: %v", key, err)
		}
	}

	if store.Len() != 3 {
		t.Fatalf("len = %d, want 3", store.Len())
	}
	// evt_0 was evicted, so it is claimable again; evt_3 is not.
	if ok, _ := store.TryBegin(ctx, "card:evt_0"); !ok {
		t.Fatal("evicted key not claimable")
	}
	if ok, _ := store.TryBegin(ctx, "card:evt_3"); ok {
		t.Fatal("newest key was evicted")
	}
}

func TestConcurrentClaimsAdmitExactlyOne(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(100)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryBegin(ctx, "card:evt_contended")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Fatalf("admitted = %d, want 1", admitted.Load())
	}
}
