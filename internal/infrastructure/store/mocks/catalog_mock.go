package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-storefront/internal/catalog"
)

// MockCatalog is an in-memory catalog.Store for testing
type MockCatalog struct {
	mu    sync.RWMutex
	items map[string]catalog.Item

	// Err, when set, is returned by every lookup
	Err error

	FindByIDCalls     []string
	FindAllByIDsCalls [][]string
}

// NewMockCatalog creates a MockCatalog seeded with items
func NewMockCatalog(items ...catalog.Item) *MockCatalog {
	m := &MockCatalog{items: make(map[string]catalog.Item)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

// Put inserts or replaces an item
func (m *MockCatalog) Put(item catalog.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Delete removes an item, simulating a catalog deletion
func (m *MockCatalog) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

func (m *MockCatalog) FindByID(ctx context.Context, id string) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindByIDCalls = append(m.FindByIDCalls, id)
	if m.Err != nil {
		return nil, m.Err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	return &it, nil
}

func (m *MockCatalog) FindAllByIDs(ctx context.Context, ids []string) ([]catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindAllByIDsCalls = append(m.FindAllByIDsCalls, append([]string(nil), ids...))
	if m.Err != nil {
		return nil, m.Err
	}
	var out []catalog.Item
	seen := make(map[string]bool)
	for _, id := range ids {
		if it, ok := m.items[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, it)
		}
	}
	return out, nil
}
