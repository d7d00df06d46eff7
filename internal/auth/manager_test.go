package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/remote"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/Veraticus/tally/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager  *Manager
	provider *MockProvider
	local    *storage.SQLiteStorage
	remote   *remote.MemoryStore
}

func newManagerFixture(t *testing.T, opts ...ManagerOption) *managerFixture {
	t.Helper()
	f := &managerFixture{
		provider: NewMockProvider(),
		local:    testutil.SetupTestDB(t).Storage,
		remote:   remote.NewMemoryStore(),
	}
	f.provider.AddAccount("uid-alice", "alice@example.com", "hunter22")
	f.manager = NewManager(f.provider, f.local, NewRoles(f.remote), opts...)
	t.Cleanup(f.manager.Close)
	return f
}

func TestManager_LoginCreatesDefaultRole(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	session, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, model.Session{
		UID:      "uid-alice",
		Email:    "alice@example.com",
		Username: "alice",
		Role:     model.DefaultRole,
	}, *session)
	assert.Equal(t, session, f.manager.Current())

	doc, err := f.remote.GetDocument(ctx, service.UsersCollection, "uid-alice")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRole, doc.Data["role"])
	assert.Equal(t, "alice", doc.Data["username"])
	assert.Equal(t, "alice@example.com", doc.Data["email"])

	user, err := f.local.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", user.UID)
}

func TestManager_LoginUsesStoredRole(t *testing.T) {
	f := newManagerFixture(t)
	f.remote.Put(service.UsersCollection, "uid-alice", map[string]any{
		"username": "alice",
		"role":     "admin",
	})

	session, err := f.manager.Login(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "admin", session.Role)
}

func TestManager_RoleFailureDefaultsToUser(t *testing.T) {
	f := newManagerFixture(t)
	f.remote.GetErr = func(string, string) error { return common.ErrPermissionDenied }

	session, err := f.manager.Login(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRole, session.Role)
	assert.Equal(t, "alice", session.Username)
	assert.Empty(t, f.remote.Documents(service.UsersCollection), "no document is created when the read fails")
}

func TestManager_LoginFailure(t *testing.T) {
	f := newManagerFixture(t)

	calls := 0
	f.manager.Observe(func(*model.Session) { calls++ })

	session, err := f.manager.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Nil(t, session)
	assert.Nil(t, f.manager.Current())
	assert.Zero(t, calls)

	_, err = f.local.LoadCredential(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestManager_Signup(t *testing.T) {
	f := newManagerFixture(t)

	session, err := f.manager.Signup(context.Background(), "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)

	_, err = f.manager.Signup(context.Background(), "bob@example.com", "secret1")
	assert.ErrorIs(t, err, common.ErrAccountExists)
}

func TestManager_ObserverSeesPopulatedSessionBeforeSync(t *testing.T) {
	synced := make(chan string, 1)
	var seen []*model.Session
	var seenMu sync.Mutex

	f := newManagerFixture(t, WithSync(func(_ context.Context, username string) error {
		seenMu.Lock()
		observed := len(seen)
		seenMu.Unlock()
		if observed == 0 {
			return errors.New("sync started before observers ran")
		}
		synced <- username
		return nil
	}))

	f.manager.Observe(func(s *model.Session) {
		seenMu.Lock()
		defer seenMu.Unlock()
		seen = append(seen, s)
	})

	_, err := f.manager.Login(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)

	task := f.manager.CurrentSync()
	require.NotNil(t, task)
	require.NoError(t, task.Wait())
	assert.Equal(t, "alice", <-synced)

	seenMu.Lock()
	defer seenMu.Unlock()
	require.Len(t, seen, 1)
	require.NotNil(t, seen[0])
	assert.Equal(t, "alice", seen[0].Username)
	assert.Equal(t, model.DefaultRole, seen[0].Role)
}

func TestManager_SyncFailureKeepsSession(t *testing.T) {
	f := newManagerFixture(t, WithSync(func(context.Context, string) error {
		return errors.New("remote offline")
	}))

	session, err := f.manager.Login(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)

	task := f.manager.CurrentSync()
	require.NotNil(t, task)
	assert.EqualError(t, task.Wait(), "remote offline")
	assert.Equal(t, session, f.manager.Current())
}

func TestManager_NewSessionCancelsPreviousSync(t *testing.T) {
	started := make(chan struct{}, 2)
	f := newManagerFixture(t, WithSync(func(ctx context.Context, _ string) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}))
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	first := f.manager.CurrentSync()
	<-started

	_, err = f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("previous sync was not canceled")
	}
	assert.ErrorIs(t, first.Wait(), context.Canceled)

	second := f.manager.CurrentSync()
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
}

func TestManager_Logout(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	var last *model.Session
	calls := 0
	f.manager.Observe(func(s *model.Session) {
		calls++
		last = s
	})

	_, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NotNil(t, last)

	f.manager.Logout(ctx)
	assert.Equal(t, 2, calls)
	assert.Nil(t, last)
	assert.Nil(t, f.manager.Current())

	_, err = f.local.LoadCredential(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestManager_RestoreSession(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	later := NewManager(f.provider, f.local, NewRoles(f.remote))
	session, err := later.RestoreSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, 1, f.provider.SignInCalls, "restoring does not sign in again")
}

func TestManager_RestoreSessionWithoutCredential(t *testing.T) {
	f := newManagerFixture(t)

	var got []*model.Session
	f.manager.Observe(func(s *model.Session) { got = append(got, s) })

	session, err := f.manager.RestoreSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, session)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestManager_ObserverMayChangeSession(t *testing.T) {
	f := newManagerFixture(t, WithSync(func(context.Context, string) error { return nil }))
	ctx := context.Background()

	var seen []string
	f.manager.Observe(func(s *model.Session) {
		if s == nil {
			seen = append(seen, "signed out")
			return
		}
		seen = append(seen, s.Role)
		if s.Role != "admin" {
			f.manager.Logout(ctx)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Login did not return when an observer signed out")
	}

	assert.Equal(t, []string{model.DefaultRole, "signed out"}, seen)
	assert.Nil(t, f.manager.Current())
	assert.Nil(t, f.manager.CurrentSync(), "the superseded session starts no sync")
}

func TestManager_Unsubscribe(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	calls := 0
	unsubscribe := f.manager.Observe(func(*model.Session) { calls++ })

	_, err := f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	unsubscribe()
	f.manager.Logout(ctx)

	assert.Equal(t, 1, calls)
}

func TestManager_TokenSourceFollowsSession(t *testing.T) {
	tokens := NewCredentialTokenSource(context.Background(), "test-key")
	f := newManagerFixture(t, WithTokenSource(tokens))
	ctx := context.Background()

	_, err := tokens.Token()
	assert.ErrorIs(t, err, common.ErrNotSignedIn)

	_, err = f.manager.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	tok, err := tokens.Token()
	require.NoError(t, err)
	assert.Equal(t, "id-token-uid-alice", tok.AccessToken)

	f.manager.Logout(ctx)
	_, err = tokens.Token()
	assert.ErrorIs(t, err, common.ErrNotSignedIn)
}

func TestSessionStore(t *testing.T) {
	var store SessionStore
	assert.Nil(t, store.Get())

	session := &model.Session{UID: "u1", Username: "alice", Role: "user"}
	store.Set(session)
	session.Role = "admin"

	got := store.Get()
	require.NotNil(t, got)
	assert.Equal(t, "user", got.Role, "the store keeps its own copy")

	store.Clear()
	assert.Nil(t, store.Get())
}
