package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// MockProvider is an in-memory Provider for testing.
type MockProvider struct {
	SignInError error
	SignUpError error
	accounts    map[string]mockAccount
	SignInCalls int
	SignUpCalls int
	mu          sync.Mutex
}

type mockAccount struct {
	uid      string
	password string
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider with no accounts.
func NewMockProvider() *MockProvider {
	return &MockProvider{accounts: make(map[string]mockAccount)}
}

// AddAccount registers an existing account.
func (m *MockProvider) AddAccount(uid, email, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = mockAccount{uid: uid, password: password}
}

// SignIn returns a credential when the password matches.
func (m *MockProvider) SignIn(_ context.Context, email, password string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignInCalls++

	if m.SignInError != nil {
		return nil, m.SignInError
	}

	account, ok := m.accounts[email]
	if !ok || account.password != password {
		return nil, common.ErrInvalidCredentials
	}
	return mockCredential(account.uid, email), nil
}

// SignUp creates an account unless email is taken.
func (m *MockProvider) SignUp(_ context.Context, email, password string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignUpCalls++

	if m.SignUpError != nil {
		return nil, m.SignUpError
	}
	if _, ok := m.accounts[email]; ok {
		return nil, common.ErrAccountExists
	}

	uid := fmt.Sprintf("uid-%d", len(m.accounts)+1)
	m.accounts[email] = mockAccount{uid: uid, password: password}
	return mockCredential(uid, email), nil
}

func mockCredential(uid, email string) *model.Credential {
	return &model.Credential{
		UID:          uid,
		Email:        email,
		IDToken:      "id-token-" + uid,
		RefreshToken: "refresh-token-" + uid,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}
