package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/remote"
	"github.com/Veraticus/tally/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoles(t *testing.T) (*Roles, *remote.MemoryStore) {
	t.Helper()
	store := remote.NewMemoryStore()
	store.Put(service.UsersCollection, "uid-alice", map[string]any{
		"uid":      "uid-alice",
		"email":    "alice@example.com",
		"username": "alice",
		"role":     "user",
	})
	return NewRoles(store), store
}

func TestRoles_Resolve(t *testing.T) {
	roles, store := newTestRoles(t)
	roles.now = func() string { return "2024-03-01T00:00:00Z" }
	ctx := context.Background()

	user, err := roles.Resolve(ctx, "uid-bob", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, &model.User{UID: "uid-bob", Email: "bob@example.com", Username: "bob", Role: "user"}, user)

	doc, err := store.GetDocument(ctx, service.UsersCollection, "uid-bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"uid":       "uid-bob",
		"email":     "bob@example.com",
		"username":  "bob",
		"role":      "user",
		"createdAt": "2024-03-01T00:00:00Z",
	}, doc.Data)
}

func TestRoles_ResolveCreateFailure(t *testing.T) {
	roles, store := newTestRoles(t)
	store.SetErr = func(string, string) error { return common.ErrRemoteUnavailable }

	user, err := roles.Resolve(context.Background(), "uid-bob", "bob@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.Equal(t, model.DefaultRole, user.Role)
	assert.Equal(t, "bob", user.Username)
}

func TestRoles_GetUserRole(t *testing.T) {
	roles, store := newTestRoles(t)
	ctx := context.Background()

	role, err := roles.GetUserRole(ctx, "uid-alice")
	require.NoError(t, err)
	assert.Equal(t, "user", role)

	_, err = roles.GetUserRole(ctx, "uid-nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)

	store.Put(service.UsersCollection, "uid-norole", map[string]any{"username": "norole"})
	role, err = roles.GetUserRole(ctx, "uid-norole")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRole, role)
}

func TestRoles_UpdateUserRole(t *testing.T) {
	roles, store := newTestRoles(t)
	ctx := context.Background()

	require.NoError(t, roles.UpdateUserRole(ctx, "alice", "admin"))

	doc, err := store.GetDocument(ctx, service.UsersCollection, "uid-alice")
	require.NoError(t, err)
	assert.Equal(t, "admin", doc.Data["role"])
	assert.Equal(t, "alice@example.com", doc.Data["email"], "other fields are untouched")

	err = roles.UpdateUserRole(ctx, "nobody", "admin")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = roles.UpdateUserRole(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestRoles_Settings(t *testing.T) {
	roles, _ := newTestRoles(t)
	ctx := context.Background()

	settings, err := roles.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, settings)

	require.NoError(t, roles.SaveSettings(ctx, "alice", model.Settings{"currency": "EUR"}))

	settings, err = roles.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.Settings{"currency": "EUR"}, settings)

	role, err := roles.GetUserRole(ctx, "uid-alice")
	require.NoError(t, err)
	assert.Equal(t, "user", role)

	_, err = roles.GetSettings(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRoles_SaveSettingsMerges(t *testing.T) {
	roles, _ := newTestRoles(t)
	ctx := context.Background()

	require.NoError(t, roles.SaveSettings(ctx, "alice", model.Settings{"currency": "EUR"}))
	require.NoError(t, roles.SaveSettings(ctx, "alice", model.Settings{"theme": "dark"}))
	require.NoError(t, roles.SaveSettings(ctx, "alice", model.Settings{"currency": "USD"}))

	settings, err := roles.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.Settings{"currency": "USD", "theme": "dark"}, settings)
}

func TestRoles_QueryFailure(t *testing.T) {
	roles, store := newTestRoles(t)
	offline := errors.New("offline")
	store.QueryErr = func(string) error { return offline }

	err := roles.SaveSettings(context.Background(), "alice", model.Settings{"theme": "dark"})
	assert.ErrorIs(t, err, offline)
}
