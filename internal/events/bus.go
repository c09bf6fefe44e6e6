package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ciphermarket/internal/domain"
)

const (
	// maxHistory bounds the replay buffer; older events are dropped.
	maxHistory = 100
	// subscriberBuffer is the per-subscriber channel depth. A subscriber
	// that falls further behind loses events rather than blocking emitters.
	subscriberBuffer = 32
)

// Bus is an in-process broadcast of lifecycle events with a bounded
// history for replay to new subscribers.
type Bus struct {
	mu      sync.Mutex
	history []domain.FlowEvent
	subs    map[uint64]chan domain.FlowEvent
	nextID  uint64
	Now     func() time.Time
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]chan domain.FlowEvent),
		Now:  time.Now,
	}
}

// Emit appends an event to history and fans it out to live subscribers.
// Fan-out never blocks; a full subscriber channel drops the event.
func (b *Bus) Emit(t domain.FlowEventType, data map[string]any) domain.FlowEvent {
	if data == nil {
		data = map[string]any{}
	}
	evt := domain.FlowEvent{
		ID:        uuid.NewString(),
		Timestamp: b.Now().UnixMilli(),
		Type:      t,
		Data:      data,
	}
	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
	return evt
}

// Subscribe registers a live feed. The returned cancel func must be called
// when the consumer disconnects; leaking subscriptions leaks channels.
func (b *Bus) Subscribe() (<-chan domain.FlowEvent, func()) {
	ch := make(chan domain.FlowEvent, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// History returns a snapshot of retained events, oldest first.
func (b *Bus) History() []domain.FlowEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.FlowEvent, len(b.history))
	copy(out, b.history)
	return out
}

// Subscribers returns the current live subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
