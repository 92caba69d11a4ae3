package claims

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryStoreClaimsOncePerDay(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Claim(ctx, "a@x.com", "2025-01-14")
	if err != nil || !ok {
		t.Fatalf("expected first claim to win, ok=%v err=%v", ok, err)
	}
	ok, _ = s.Claim(ctx, " A@X.com ", "2025-01-14")
	if ok {
		t.Fatal("expected second claim on the same day to lose")
	}
	ok, _ = s.Claim(ctx, "b@x.com", "2025-01-14")
	if !ok {
		t.Fatal("expected a different recipient to be claimable")
	}
	ok, _ = s.Claim(ctx, "a@x.com", "2025-01-15")
	if !ok {
		t.Fatal("expected claim on the next day to win")
	}
}

func TestMemoryStoreRelease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if ok, _ := s.Claim(ctx, "a@x.com", "2025-01-14"); !ok {
		t.Fatal("expected first claim to win")
	}
	if err := s.Release(ctx, " A@x.com", "2025-01-14"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if ok, _ := s.Claim(ctx, "a@x.com", "2025-01-14"); !ok {
		t.Fatal("expected claim to win again after release")
	}
	if err := s.Release(ctx, "a@x.com", "2025-01-13"); err != nil {
		t.Fatalf("Release of a stale day returned error: %v", err)
	}
	if ok, _ := s.Claim(ctx, "a@x.com", "2025-01-14"); ok {
		t.Fatal("releasing another day must not drop today's claim")
	}
}

func TestMemoryStoreConcurrentClaims(t *testing.T) {
	s := NewMemoryStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(context.Background(), "a@x.com", "2025-01-14"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestRedisStoreKey(t *testing.T) {
	s := NewRedisStore(nil, 0, "node-1")
	if got := s.key(" A@x.com", "2025-01-14"); got != "climatewatch:claim:2025-01-14:a@x.com" {
		t.Fatalf("unexpected key %q", got)
	}
	if s.ttl != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", s.ttl)
	}
}
