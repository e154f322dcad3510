package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/example/ec-storefront/internal/auth"
)

// MockUserStore is an in-memory auth.UserStore for testing
type MockUserStore struct {
	mu    sync.RWMutex
	users map[int64]*auth.User

	Err error
}

func NewMockUserStore(users ...*auth.User) *MockUserStore {
	m := &MockUserStore{users: make(map[int64]*auth.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (m *MockUserStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}
