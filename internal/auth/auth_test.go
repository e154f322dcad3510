package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Password Tests
// ============================================

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"8 characters", "password", nil},
		{"with unicode", "contraseña-123", nil},
		{"7 characters", "1234567", ErrPasswordTooShort},
		{"empty", "", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, CheckPassword(tt.password, hash))
			assert.False(t, CheckPassword(tt.password+"x", hash))
		})
	}
}

func TestCheckPassword_InvalidHash(t *testing.T) {
	assert.False(t, CheckPassword("password", "not-a-bcrypt-hash"))
	assert.False(t, CheckPassword("password", ""))
}

// ============================================
// Authenticate Tests
// ============================================

type fakeUsers struct {
	byEmail map[string]*User
	err     error
	lookups []string
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	f.lookups = append(f.lookups, email)
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func newFakeUsers(t *testing.T) *fakeUsers {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	return &fakeUsers{byEmail: map[string]*User{
		"ada@example.com": {ID: 1, Email: "ada@example.com", PasswordHash: hash, Role: RoleCustomer},
	}}
}

func TestAuthenticate_Success(t *testing.T) {
	users := newFakeUsers(t)

	u, err := Authenticate(context.Background(), users, "  Ada@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, []string{"ada@example.com"}, users.lookups)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	users := newFakeUsers(t)

	_, err := Authenticate(context.Background(), users, "ada@example.com", "wrong-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	users := newFakeUsers(t)

	_, err := Authenticate(context.Background(), users, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_StoreError(t *testing.T) {
	users := newFakeUsers(t)
	users.err = errors.New("connection reset")

	_, err := Authenticate(context.Background(), users, "ada@example.com", "correct-horse")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
