package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// SaveCredential persists the signed-in credential, replacing any previous one.
func (s *SQLiteStorage) SaveCredential(ctx context.Context, cred *model.Credential) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("%w: credential", ErrNilParameter)
	}
	if err := validateString(cred.UID, "uid"); err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if !cred.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: cred.ExpiresAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, uid, email, id_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			uid = excluded.uid,
			email = excluded.email,
			id_token = excluded.id_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		cred.UID, cred.Email, cred.IDToken, cred.RefreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// LoadCredential returns the persisted credential or common.ErrNotFound.
func (s *SQLiteStorage) LoadCredential(ctx context.Context) (*model.Credential, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var cred model.Credential
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, email, id_token, refresh_token, expires_at
		FROM credentials WHERE id = 1`).
		Scan(&cred.UID, &cred.Email, &cred.IDToken, &cred.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if expiresAt.Valid {
		cred.ExpiresAt = expiresAt.Time
	}
	return &cred, nil
}

// ClearCredential removes the persisted credential. Clearing twice is not an error.
func (s *SQLiteStorage) ClearCredential(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
