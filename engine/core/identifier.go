package core

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Registry hands out unique identifiers and remembers who owns them until
// the identifier is released.
type Registry struct {
	mu     sync.Mutex
	owners map[uuid.UUID]interface{}
	order  map[uuid.UUID]uint64
	next   uint64
}

func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[uuid.UUID]interface{}),
		order:  make(map[uuid.UUID]uint64),
	}
}

func (r *Registry) Acquire(owner interface{}) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.owners[id] = owner
	r.order[id] = r.next
	r.next++
	return id
}

func (r *Registry) Release(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[id]; !ok {
		return errors.Newf("identifier %s is not registered, nothing was done", id)
	}
	delete(r.owners, id)
	delete(r.order, id)
	return nil
}

func (r *Registry) Owner(id uuid.UUID) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.owners[id]
	return o, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Owners returns the live owners in acquisition order.
func (r *Registry) Owners() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.owners))
	for id := range r.owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] < r.order[ids[j]] })

	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.owners[id])
	}
	return out
}
