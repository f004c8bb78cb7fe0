package product

import "sync"

// Registry indexes products by id and alias for lookup.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Product
	byAlias map[string]*Product
	ordered []*Product
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Product),
		byAlias: make(map[string]*Product),
	}
}

// Add registers a product. A product with an already known id is ignored and
// the existing one is returned.
func (r *Registry) Add(p *Product) *Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[p.ID]; ok {
		return existing
	}
	r.byID[p.ID] = p
	if p.Alias != "" {
		r.byAlias[p.Alias] = p
	}
	r.ordered = append(r.ordered, p)
	return p
}

// Get looks a product up by id, then by alias.
func (r *Registry) Get(idOrAlias string) (*Product, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byID[idOrAlias]; ok {
		return p, true
	}
	p, ok := r.byAlias[idOrAlias]
	return p, ok
}

// All returns the registered products in registration order.
func (r *Registry) All() []*Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Product, len(r.ordered))
	copy(out, r.ordered)
	return out
}
