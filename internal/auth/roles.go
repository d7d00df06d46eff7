package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// User document field names.
const (
	fieldUID       = "uid"
	fieldEmail     = "email"
	fieldUsername  = "username"
	fieldRole      = "role"
	fieldSettings  = "settings"
	fieldCreatedAt = "createdAt"
)

// Roles reads and writes the per-user documents of the users collection.
// Documents are keyed by UID and carry the username as a field.
type Roles struct {
	remote     service.RemoteStore
	now        func() string
	collection string
}

// NewRoles creates role and settings accessors over remote.
func NewRoles(remote service.RemoteStore) *Roles {
	return &Roles{
		remote:     remote,
		collection: service.UsersCollection,
		now:        nowISO,
	}
}

// Resolve returns the user document for uid, creating it with the default
// role when it does not exist. The returned user is always usable: on error
// it carries the default role and the username derived from email.
func (r *Roles) Resolve(ctx context.Context, uid, email string) (*model.User, error) {
	user := &model.User{
		UID:      uid,
		Email:    email,
		Username: model.UsernameFromEmail(email),
		Role:     model.DefaultRole,
	}

	doc, err := r.remote.GetDocument(ctx, r.collection, uid)
	switch {
	case err == nil:
		if role, ok := doc.Data[fieldRole].(string); ok && role != "" {
			user.Role = role
		}
		if username, ok := doc.Data[fieldUsername].(string); ok && username != "" {
			user.Username = username
		}
		if settings, ok := doc.Data[fieldSettings].(map[string]any); ok {
			user.Settings = settings
		}
		return user, nil

	case errors.Is(err, common.ErrNotFound):
		data := map[string]any{
			fieldUID:       uid,
			fieldEmail:     email,
			fieldUsername:  user.Username,
			fieldRole:      model.DefaultRole,
			fieldCreatedAt: r.now(),
		}
		if err := r.remote.SetDocument(ctx, r.collection, uid, data, true); err != nil {
			common.LogError(err, "Failed to create user document", common.Fields{"uid": uid})
			return user, fmt.Errorf("failed to create user document: %w", err)
		}
		common.LogInfo("Created user document", common.Fields{"uid": uid, "username": user.Username})
		return user, nil

	default:
		common.LogError(err, "Failed to read user document", common.Fields{"uid": uid})
		return user, fmt.Errorf("failed to read user document: %w", err)
	}
}

// GetUserRole returns the role stored for uid.
func (r *Roles) GetUserRole(ctx context.Context, uid string) (string, error) {
	doc, err := r.remote.GetDocument(ctx, r.collection, uid)
	if err != nil {
		common.LogError(err, "Failed to get user role", common.Fields{"uid": uid})
		return "", err
	}

	role, _ := doc.Data[fieldRole].(string)
	if role == "" {
		return model.DefaultRole, nil
	}
	return role, nil
}

// UpdateUserRole sets the role of the user named username.
func (r *Roles) UpdateUserRole(ctx context.Context, username, role string) error {
	if role == "" {
		return fmt.Errorf("%w: role cannot be empty", common.ErrInvalidConfig)
	}

	id, err := r.findByUsername(ctx, username)
	if err != nil {
		common.LogError(err, "Failed to update user role", common.Fields{"username": username})
		return err
	}

	if err := r.remote.SetDocument(ctx, r.collection, id, map[string]any{fieldRole: role}, true); err != nil {
		common.LogError(err, "Failed to update user role", common.Fields{"username": username})
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// SaveSettings merges settings into the stored settings of username.
func (r *Roles) SaveSettings(ctx context.Context, username string, settings model.Settings) error {
	id, err := r.findByUsername(ctx, username)
	if err != nil {
		common.LogError(err, "Failed to save settings", common.Fields{"username": username})
		return err
	}

	data := map[string]any{fieldSettings: map[string]any(settings)}
	if err := r.remote.SetDocument(ctx, r.collection, id, data, true); err != nil {
		common.LogError(err, "Failed to save settings", common.Fields{"username": username})
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// GetSettings returns the stored settings of username, empty when none were saved.
func (r *Roles) GetSettings(ctx context.Context, username string) (model.Settings, error) {
	id, err := r.findByUsername(ctx, username)
	if err != nil {
		common.LogError(err, "Failed to get settings", common.Fields{"username": username})
		return nil, err
	}

	doc, err := r.remote.GetDocument(ctx, r.collection, id)
	if err != nil {
		common.LogError(err, "Failed to get settings", common.Fields{"username": username})
		return nil, err
	}

	settings, _ := doc.Data[fieldSettings].(map[string]any)
	if settings == nil {
		return model.Settings{}, nil
	}
	return settings, nil
}

func (r *Roles) findByUsername(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username cannot be empty: %w", common.ErrNotFound)
	}

	docs, err := r.remote.QueryEqual(ctx, r.collection, fieldUsername, username)
	if err != nil {
		return "", fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("user %q: %w", username, common.ErrNotFound)
	}
	return docs[0].ID, nil
}
