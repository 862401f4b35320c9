package dex

import (
	"fmt"
	"sync"
)

// Registry holds the routers of the configured venues, keyed by venue id.
type Registry struct {
	mu      sync.RWMutex
	routers map[string]Router
	order   []string
}

func NewRegistry(routers ...Router) *Registry {
	r := &Registry{routers: make(map[string]Router, len(routers))}
	for _, router := range routers {
		r.Add(router)
	}
	return r
}

// Add registers router under its name, replacing any previous router for that venue.
func (r *Registry) Add(router Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routers[router.Name()]; !ok {
		r.order = append(r.order, router.Name())
	}
	r.routers[router.Name()] = router
}

// Router returns the router of venue id.
func (r *Registry) Router(id string) (Router, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	router, ok := r.routers[id]
	if !ok {
		return nil, fmt.Errorf("unknown venue %q", id)
	}
	return router, nil
}

// IDs returns the registered venue ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}
