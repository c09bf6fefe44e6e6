package store

import (
	"context"
	"sync"
	"time"

	"ciphermarket/internal/domain"
)

const (
	// DefaultTTL is how long an unpaid response stays retrievable.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often expired entries are evicted.
	DefaultSweepInterval = time.Minute
)

// TakeStatus is the outcome of an atomic Take.
type TakeStatus int

const (
	TakeOK TakeStatus = iota
	TakeMissing
	TakeSellerMismatch
)

// Store holds encrypted responses awaiting paid retrieval. Entries live at
// most TTL; retrieval consumes them. All state is process memory only.
type Store struct {
	mu      sync.Mutex
	entries map[string]domain.PendingResponse
	ttl     time.Duration
	Now     func() time.Time
}

// New returns a store with the given TTL (DefaultTTL if zero).
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]domain.PendingResponse),
		ttl:     ttl,
		Now:     time.Now,
	}
}

// Put stores an entry under id.
func (s *Store) Put(id string, entry domain.PendingResponse) {
	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()
}

// Get returns the entry for id if present and unexpired.
func (s *Store) Get(id string) (domain.PendingResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return domain.PendingResponse{}, false
	}
	if s.expired(entry) {
		delete(s.entries, id)
		return domain.PendingResponse{}, false
	}
	return entry, true
}

// Take removes and returns the entry for id when its seller matches.
// The remove is atomic with the lookup so concurrent retrievals of the
// same id yield at most one TakeOK. A seller mismatch leaves the entry
// in place.
func (s *Store) Take(id, sellerID string) (domain.PendingResponse, TakeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || s.expired(entry) {
		delete(s.entries, id)
		return domain.PendingResponse{}, TakeMissing
	}
	if entry.SellerID != sellerID {
		return domain.PendingResponse{}, TakeSellerMismatch
	}
	delete(s.entries, id)
	return entry, TakeOK
}

// Delete removes the entry for id. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on a fixed interval until ctx is done. Sweeps never overlap:
// each completes before the next tick is consumed.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(entry domain.PendingResponse) bool {
	return s.Now().Sub(entry.CreatedAt) > s.ttl
}
