package events

import (
	"fmt"
	"testing"
	"time"

	"ciphermarket/internal/domain"
)

func TestEmitFillsEnvelope(t *testing.T) {
	b := New()
	now := time.UnixMilli(1700000000000)
	b.Now = func() time.Time { return now }

	evt := b.Emit(domain.EventQueryReceived, map[string]any{"sellerId": "weather-global"})
	if evt.ID == "" {
		t.Fatal("empty event id")
	}
	if evt.Timestamp != 1700000000000 {
		t.Fatalf("timestamp %d", evt.Timestamp)
	}
	if evt.Type != domain.EventQueryReceived {
		t.Fatalf("type %s", evt.Type)
	}

	nilData := b.Emit(domain.EventError, nil)
	if nilData.Data == nil {
		t.Fatal("nil data not normalized")
	}
}

func TestHistoryBounded(t *testing.T) {
	b := New()
	for i := 0; i < maxHistory+25; i++ {
		b.Emit(domain.EventQueryReceived, map[string]any{"n": i})
	}
	h := b.History()
	if len(h) != maxHistory {
		t.Fatalf("history len %d, want %d", len(h), maxHistory)
	}
	// Oldest events are dropped, newest retained.
	if h[len(h)-1].Data["n"] != maxHistory+24 {
		t.Fatalf("last event %v", h[len(h)-1].Data["n"])
	}
	if h[0].Data["n"] != 25 {
		t.Fatalf("first event %v", h[0].Data["n"])
	}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	b := New()
	feed, cancel := b.Subscribe()
	defer cancel()

	b.Emit(domain.EventDataDelivered, map[string]any{"responseId": "r1"})
	select {
	case evt := <-feed:
		if evt.Type != domain.EventDataDelivered {
			t.Fatalf("type %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers %d", b.Subscribers())
	}
	cancel()
	cancel() // safe to call twice
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers %d after cancel", b.Subscribers())
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	feed, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Nobody drains the feed; emitting far past the buffer must not block.
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Emit(domain.EventQueryReceived, map[string]any{"n": fmt.Sprint(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
	if got := len(feed); got > subscriberBuffer {
		t.Fatalf("buffered %d events, cap %d", got, subscriberBuffer)
	}
}
