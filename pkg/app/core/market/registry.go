package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/marketsim/pkg/app/core/ids"
)

// Registry holds the markets of one run, indexed by ID.
type Registry struct {
	mu      sync.RWMutex
	markets map[ids.MarketID]*Market
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[ids.MarketID]*Market)}
}

// Register adds m. Registering the same ID twice is an error.
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[m.ID]; exists {
		return fmt.Errorf("market %d already registered", m.ID)
	}
	r.markets[m.ID] = m
	return nil
}

// Get retrieves a market by ID
func (r *Registry) Get(id ids.MarketID) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.markets[id]
	if !exists {
		return nil, fmt.Errorf("market %d not found", id)
	}
	return m, nil
}

// List returns all markets ordered by ID.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
