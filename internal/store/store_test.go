package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ciphermarket/internal/domain"
)

func entry(sellerID string, createdAt time.Time) domain.PendingResponse {
	return domain.PendingResponse{
		SellerID:      sellerID,
		EncryptedData: "0xdeadbeef",
		CreatedAt:     createdAt,
	}
}

func TestPutGetTake(t *testing.T) {
	s := New(DefaultTTL)
	now := time.Now()
	s.Put("r1", entry("weather-global", now))

	got, ok := s.Get("r1")
	if !ok || got.SellerID != "weather-global" {
		t.Fatalf("get: %+v %v", got, ok)
	}

	taken, status := s.Take("r1", "weather-global")
	if status != TakeOK || taken.EncryptedData != "0xdeadbeef" {
		t.Fatalf("take: %+v %v", taken, status)
	}
	if _, status := s.Take("r1", "weather-global"); status != TakeMissing {
		t.Fatalf("second take status %v, want missing", status)
	}
}

func TestTakeSellerMismatchLeavesEntry(t *testing.T) {
	s := New(DefaultTTL)
	s.Put("r1", entry("weather-global", time.Now()))

	if _, status := s.Take("r1", "crypto-prices"); status != TakeSellerMismatch {
		t.Fatalf("status %v, want mismatch", status)
	}
	// The rightful seller can still consume it.
	if _, status := s.Take("r1", "weather-global"); status != TakeOK {
		t.Fatalf("status %v, want ok", status)
	}
}

func TestTTLEviction(t *testing.T) {
	s := New(time.Minute)
	base := time.Now()
	s.Now = func() time.Time { return base }
	s.Put("fresh", entry("a", base))
	s.Put("stale", entry("a", base.Add(-2*time.Minute)))

	if _, ok := s.Get("stale"); ok {
		t.Fatal("expired entry served")
	}
	if _, status := s.Take("stale", "a"); status != TakeMissing {
		t.Fatalf("expired take status %v", status)
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Fatal("fresh entry evicted")
	}
}

func TestSweep(t *testing.T) {
	s := New(time.Minute)
	base := time.Now()
	s.Now = func() time.Time { return base }
	s.Put("a", entry("x", base))
	s.Put("b", entry("x", base.Add(-5*time.Minute)))
	s.Put("c", entry("x", base.Add(-90*time.Second)))

	if removed := s.Sweep(); removed != 2 {
		t.Fatalf("sweep removed %d, want 2", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("len %d, want 1", s.Len())
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := New(DefaultTTL)
	s.Put("r1", entry("a", time.Now()))
	s.Delete("r1")
	s.Delete("r1")
	s.Delete("never-existed")
	if s.Len() != 0 {
		t.Fatalf("len %d", s.Len())
	}
}

func TestConcurrentTakeAtMostOnce(t *testing.T) {
	s := New(DefaultTTL)
	s.Put("r1", entry("a", time.Now()))

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, status := s.Take("r1", "a"); status == TakeOK {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d takers won, want exactly 1", wins)
	}
}

func TestRunSweeps(t *testing.T) {
	s := New(time.Millisecond)
	s.Put("a", entry("x", time.Now().Add(-time.Second)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	deadline := time.After(time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never evicted the entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
