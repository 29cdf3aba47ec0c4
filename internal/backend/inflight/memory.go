package inflight

import (
	"context"
	"sync"
	"time"
)

type reservation struct {
	until time.Time
	ids   []string
}

// MemoryRegistry expires reservations lazily on read.
type MemoryRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	reserved map[string]*reservation
	now      func() time.Time
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		ttl:      ttl,
		reserved: make(map[string]*reservation),
		now:      time.Now,
	}
}

func (r *MemoryRegistry) TryReserve(_ context.Context, ids ...string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, id := range ids {
		if r.active(id, now) {
			return false, nil
		}
	}
	res := &reservation{until: now.Add(r.ttl), ids: append([]string(nil), ids...)}
	for _, id := range ids {
		r.reserved[id] = res
	}
	return true, nil
}

func (r *MemoryRegistry) Release(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		res, ok := r.reserved[id]
		if !ok {
			continue
		}
		for _, member := range res.ids {
			if r.reserved[member] == res {
				delete(r.reserved, member)
			}
		}
	}
	return nil
}

func (r *MemoryRegistry) Filter(_ context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !r.active(id, now) {
			out = append(out, id)
		}
	}
	return out, nil
}

// active reports whether id holds an unexpired reservation and drops an expired one.
// Callers hold r.mu.
func (r *MemoryRegistry) active(id string, now time.Time) bool {
	res, ok := r.reserved[id]
	if !ok {
		return false
	}
	if now.Before(res.until) {
		return true
	}
	delete(r.reserved, id)
	return false
}

func (r *MemoryRegistry) Close() error {
	return nil
}
