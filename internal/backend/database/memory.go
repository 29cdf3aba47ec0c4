package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jo-hoe/promptrank/internal/entry"
)

// MemoryDatabase keeps entries in process memory. Contents are lost on Close.
type MemoryDatabase struct {
	mu      sync.RWMutex
	entries map[string]entry.Entry
	order   []string
	closed  bool
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{entries: make(map[string]entry.Entry)}
}

func (m *MemoryDatabase) CreateDatabase() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	return nil
}

func (m *MemoryDatabase) DoesDatabaseExist() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

func (m *MemoryDatabase) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry.Entry)
	m.order = nil
	m.closed = true
	return nil
}

func (m *MemoryDatabase) CreateEntry(_ context.Context, e entry.Entry) (entry.Entry, error) {
	if e.ID == "" {
		e.ID = generateID()
	}
	if err := e.Validate(); err != nil {
		return entry.Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; ok {
		return entry.Entry{}, fmt.Errorf("entry %s already exists", e.ID)
	}
	m.entries[e.ID] = e.Clone()
	m.order = append(m.order, e.ID)
	return e.Clone(), nil
}

func (m *MemoryDatabase) GetEntryByID(_ context.Context, id string) (entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return entry.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (m *MemoryDatabase) GetEntries(_ context.Context) ([]entry.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entry.Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id].Clone())
	}
	return out, nil
}

func (m *MemoryDatabase) UpdateEntry(_ context.Context, e entry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID)
	}
	m.entries[e.ID] = e.Clone()
	return nil
}

func (m *MemoryDatabase) PurgeEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.entries, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
