package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// SyncFunc reconciles the data of username. It runs in the background after
// every sign-in and must return once ctx is canceled.
type SyncFunc func(ctx context.Context, username string) error

// Callback receives every session change. A nil session means signed out.
type Callback func(session *model.Session)

// SyncTask is a background sync started by a session change.
type SyncTask struct {
	err      error
	done     chan struct{}
	cancel   context.CancelFunc
	Username string
}

// Wait blocks until the sync finishes and returns its error.
func (t *SyncTask) Wait() error {
	<-t.done
	return t.err
}

// Done is closed when the sync finishes.
func (t *SyncTask) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the sync. It does not wait for it to return.
func (t *SyncTask) Cancel() {
	t.cancel()
}

// Manager owns sign-in, sign-out and the current session. Every session change
// resolves the user's role, updates the SessionStore, notifies observers and
// starts a background sync, in that order.
type Manager struct {
	provider   Provider
	local      service.LocalStore
	roles      *Roles
	sessions   *SessionStore
	tokens     *CredentialTokenSource
	syncFn     SyncFunc
	observers  map[int]Callback
	task       *SyncTask
	nextID     int
	generation int
	mu         sync.Mutex
	publishMu  sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSync sets the function run in the background after each sign-in.
func WithSync(fn SyncFunc) ManagerOption {
	return func(m *Manager) { m.syncFn = fn }
}

// WithTokenSource keeps tokens pointed at the signed-in credential.
func WithTokenSource(tokens *CredentialTokenSource) ManagerOption {
	return func(m *Manager) { m.tokens = tokens }
}

// WithSessionStore shares an existing SessionStore.
func WithSessionStore(store *SessionStore) ManagerOption {
	return func(m *Manager) {
		if store != nil {
			m.sessions = store
		}
	}
}

// NewManager creates a session manager.
func NewManager(provider Provider, local service.LocalStore, roles *Roles, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:  provider,
		local:     local,
		roles:     roles,
		sessions:  &SessionStore{},
		observers: make(map[int]Callback),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sessions returns the store holding the current session.
func (m *Manager) Sessions() *SessionStore {
	return m.sessions
}

// Current returns the current session, or nil when signed out.
func (m *Manager) Current() *model.Session {
	return m.sessions.Get()
}

// CurrentSync returns the most recently started background sync, if any.
func (m *Manager) CurrentSync() *SyncTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task
}

// Observe registers callback for session changes and returns a function that
// unregisters it. A callback may call Login, Signup or Logout on m; that
// change is delivered after the current one and cancels its sync.
func (m *Manager) Observe(callback Callback) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.observers[id] = callback

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// Login signs in with email and password and establishes the session.
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Session, error) {
	cred, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		common.LogError(err, "Login failed", common.Fields{"email": email})
		return nil, err
	}
	return m.establish(ctx, cred), nil
}

// Signup creates an account and establishes its session.
func (m *Manager) Signup(ctx context.Context, email, password string) (*model.Session, error) {
	cred, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		common.LogError(err, "Signup failed", common.Fields{"email": email})
		return nil, err
	}
	return m.establish(ctx, cred), nil
}

// Logout forgets the persisted credential and clears the session. Failures
// are logged only.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.local.ClearCredential(ctx); err != nil {
		common.LogError(err, "Failed to clear saved credential", nil)
	}
	m.publish(ctx, nil)
}

// RestoreSession re-establishes the session saved by an earlier Login. When
// nothing was saved the session is cleared and nil is returned.
func (m *Manager) RestoreSession(ctx context.Context) (*model.Session, error) {
	cred, err := m.local.LoadCredential(ctx)
	if errors.Is(err, common.ErrNotFound) {
		m.publish(ctx, nil)
		return nil, nil
	}
	if err != nil {
		common.LogError(err, "Failed to load saved credential", nil)
		m.publish(ctx, nil)
		return nil, err
	}

	return m.publish(ctx, cred), nil
}

// Close cancels any background sync and waits for it to return.
func (m *Manager) Close() {
	m.mu.Lock()
	task := m.task
	m.mu.Unlock()

	if task != nil {
		task.Cancel()
		<-task.Done()
	}
}

func (m *Manager) establish(ctx context.Context, cred *model.Credential) *model.Session {
	if err := m.local.SaveCredential(ctx, cred); err != nil {
		common.LogError(err, "Failed to save credential", common.Fields{"uid": cred.UID})
	}
	return m.publish(ctx, cred)
}

// publish applies a session change. Role resolution completes before
// observers run; the sync it starts does not. Observers run without publishMu
// held, so a callback may itself sign in or out. Such a nested change
// supersedes this one: remaining observers are skipped and no sync starts.
func (m *Manager) publish(ctx context.Context, cred *model.Credential) *model.Session {
	m.publishMu.Lock()

	m.mu.Lock()
	previous := m.task
	m.task = nil
	m.generation++
	gen := m.generation
	m.mu.Unlock()
	if previous != nil {
		previous.Cancel()
	}

	if m.tokens != nil {
		m.tokens.SetCredential(cred)
	}

	if cred == nil {
		m.sessions.Clear()
		m.publishMu.Unlock()
		m.notify(nil, gen)
		common.LogDebug("Session cleared", nil)
		return nil
	}

	user, err := m.roles.Resolve(ctx, cred.UID, cred.Email)
	if err != nil {
		common.LogWarn("Using default role", common.Fields{"uid": cred.UID, "error": err.Error()})
	}

	if err := m.local.RegisterUser(ctx, user); err != nil {
		common.LogError(err, "Failed to record local user", common.Fields{"username": user.Username})
	}

	session := &model.Session{
		UID:      cred.UID,
		Email:    cred.Email,
		Username: user.Username,
		Role:     user.Role,
	}
	m.sessions.Set(session)
	m.publishMu.Unlock()

	m.notify(session, gen)

	common.LogInfo("Signed in", common.Fields{"username": session.Username, "role": session.Role})

	if m.syncFn != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.task = m.startSync(ctx, session.Username)
		}
		m.mu.Unlock()
	}
	return session
}

// notify runs the observers registered at call time, in registration order,
// until a newer session change than gen is published.
func (m *Manager) notify(session *model.Session, gen int) {
	m.mu.Lock()
	callbacks := make([]Callback, 0, len(m.observers))
	for id := 0; id < m.nextID; id++ {
		if cb, ok := m.observers[id]; ok {
			callbacks = append(callbacks, cb)
		}
	}
	m.mu.Unlock()

	for _, cb := range callbacks {
		if m.superseded(gen) {
			return
		}
		if session == nil {
			cb(nil)
			continue
		}
		copied := *session
		cb(&copied)
	}
}

func (m *Manager) superseded(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation != gen
}

func (m *Manager) startSync(ctx context.Context, username string) *SyncTask {
	syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &SyncTask{
		Username: username,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(task.done)
		defer cancel()

		task.err = m.syncFn(syncCtx, username)
		if task.err != nil {
			common.LogError(task.err, "Background sync failed", common.Fields{"username": username})
		}
	}()
	return task
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
