package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/order"
)

// MockOrderStore is an in-memory order.Store for testing. Create is
// all-or-nothing: when CreateErr is set nothing is recorded.
type MockOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
	byRef  map[string]string
	events []order.Event

	// Error injection
	CreateErr         error
	MarkProcessingErr error

	// For tracking calls in tests
	CreateCalls         []*order.Order
	MarkProcessingCalls []string
	UpdateStatusCalls   []UpdateStatusCall
}

// UpdateStatusCall records parameters passed to UpdateStatus
type UpdateStatusCall struct {
	ID     string
	Status order.Status
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[string]*order.Order),
		byRef:  make(map[string]string),
	}
}

func clone(o *order.Order) *order.Order {
	c := *o
	c.Lines = append([]order.Line(nil), o.Lines...)
	return &c
}

func (m *MockOrderStore) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, clone(o))
	if m.CreateErr != nil {
		return m.CreateErr
	}
	ref := o.Reference()
	if _, exists := m.byRef[ref]; ref != "" && exists {
		return order.ErrDuplicateReference
	}

	ev, err := order.PlacedEvent(o)
	if err != nil {
		return err
	}
	m.orders[o.ID] = clone(o)
	if ref != "" {
		m.byRef[ref] = o.ID
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MockOrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(o), nil
}

func (m *MockOrderStore) FindByProviderRef(ctx context.Context, ref string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[ref]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(m.orders[id]), nil
}

func (m *MockOrderStore) MarkProcessing(ctx context.Context, ref string) (*order.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkProcessingCalls = append(m.MarkProcessingCalls, ref)
	if m.MarkProcessingErr != nil {
		return nil, false, m.MarkProcessingErr
	}
	id, ok := m.byRef[ref]
	if !ok {
		return nil, false, order.ErrOrderNotFound
	}
	o := m.orders[id]
	if o.Status != order.StatusPending {
		return clone(o), false, nil
	}

	now := time.Now()
	o.Status = order.StatusProcessing
	o.UpdatedAt = now
	ev, err := order.PaidEvent(o, now)
	if err != nil {
		return nil, false, err
	}
	m.events = append(m.events, ev)
	return clone(o), true, nil
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateStatusCalls = append(m.UpdateStatusCalls, UpdateStatusCall{ID: id, Status: to})
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	if err := order.ValidateAdminTransition(o.Status, to); err != nil {
		return nil, err
	}

	now := time.Now()
	ev, err := order.StatusChangedEvent(id, o.Status, to, now)
	if err != nil {
		return nil, err
	}
	o.Status = to
	o.UpdatedAt = now
	m.events = append(m.events, ev)
	return clone(o), nil
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*order.Order
	for _, o := range m.orders {
		if o.IsOwnedBy(userID) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockOrderStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*order.Order
	for _, o := range m.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, clone(o))
		}
	}
	return out, nil
}

// Put seeds an order directly, bypassing Create
func (m *MockOrderStore) Put(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = clone(o)
	if ref := o.Reference(); ref != "" {
		m.byRef[ref] = o.ID
	}
}

// Count returns the number of stored orders
func (m *MockOrderStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

// Events returns the outbox events recorded so far
func (m *MockOrderStore) Events() []order.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]order.Event(nil), m.events...)
}
