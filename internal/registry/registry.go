package registry

import (
	"fmt"
	"sort"
	"sync"

	"ciphermarket/internal/domain"
)

// Registry maps seller identifiers to seller descriptors. Sellers are
// registered once at startup and never removed.
type Registry struct {
	mu      sync.RWMutex
	sellers map[string]domain.Seller
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sellers: make(map[string]domain.Seller)}
}

// Register adds a seller. Registering an id twice or a seller without a
// handler is a programming error.
func (r *Registry) Register(s domain.Seller) error {
	if s.ID == "" {
		return fmt.Errorf("seller id is required")
	}
	if s.Handler == nil {
		return fmt.Errorf("seller %s has no handler", s.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sellers[s.ID]; exists {
		return fmt.Errorf("seller %s already registered", s.ID)
	}
	r.sellers[s.ID] = s
	r.order = append(r.order, s.ID)
	return nil
}

// MustRegister panics on registration failure; for startup wiring.
func (r *Registry) MustRegister(s domain.Seller) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns a seller by id.
func (r *Registry) Get(id string) (domain.Seller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sellers[id]
	return s, ok
}

// List returns all sellers in registration order.
func (r *Registry) List() []domain.Seller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Seller, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sellers[id])
	}
	return out
}

// ListInfo returns serializable seller info in registration order.
func (r *Registry) ListInfo() []domain.SellerInfo {
	sellers := r.List()
	out := make([]domain.SellerInfo, 0, len(sellers))
	for _, s := range sellers {
		out = append(out, s.Info())
	}
	return out
}

// GetInfo returns serializable info for one seller.
func (r *Registry) GetInfo(id string) (domain.SellerInfo, bool) {
	s, ok := r.Get(id)
	if !ok {
		return domain.SellerInfo{}, false
	}
	return s.Info(), true
}

// Len returns the number of registered sellers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sellers)
}

// IDs returns all seller ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sellers))
	for id := range r.sellers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
