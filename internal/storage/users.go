package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// FindUser returns the local user record for username.
func (s *SQLiteStorage) FindUser(ctx context.Context, username string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(username, "username"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT username, uid, email, role, settings
		FROM users WHERE username = ?`, username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, common.ErrNotFound)
	}
	return user, err
}

// RegisterUser inserts or replaces the local user record keyed by username.
func (s *SQLiteStorage) RegisterUser(ctx context.Context, user *model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUser(user); err != nil {
		return err
	}

	role := user.Role
	if role == "" {
		role = model.DefaultRole
	}

	var settings sql.NullString
	if len(user.Settings) > 0 {
		data, err := json.Marshal(user.Settings)
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		settings = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, uid, email, role, settings)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			uid = excluded.uid,
			email = excluded.email,
			role = excluded.role,
			settings = COALESCE(excluded.settings, users.settings)`,
		user.Username, user.UID, user.Email, role, settings)
	if err != nil {
		return fmt.Errorf("failed to save user %q: %w", user.Username, err)
	}
	return nil
}

// GetAllUsers returns every local user ordered by username.
func (s *SQLiteStorage) GetAllUsers(ctx context.Context) ([]model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT username, uid, email, role, settings
		FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the local user record. Transactions are left in place.
func (s *SQLiteStorage) DeleteUser(ctx context.Context, username string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(username, "username"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user %q: %w", username, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q: %w", username, common.ErrNotFound)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	var settings sql.NullString

	if err := row.Scan(&user.Username, &user.UID, &user.Email, &user.Role, &settings); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if settings.Valid && settings.String != "" {
		if err := json.Unmarshal([]byte(settings.String), &user.Settings); err != nil {
			// Log but don't fail on JSON parse error
			slog.Warn("Failed to parse user settings", "username", user.Username, "error", err)
		}
	}
	return &user, nil
}
