// Package credstore persists the delegated OAuth credential so a completed
// authorization survives process restarts. Backed by a single-table SQLite
// database; tokens are optionally sealed at rest with chacha20poly1305.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Credential is the stored delegated grant. RefreshToken may be empty when
// the authorization server did not issue one.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// ErrNoCredential is returned when no delegated grant has been completed.
var ErrNoCredential = errors.New("credstore: no delegated credential stored")

// Store holds the delegated credential. A nil seal means tokens are stored
// in the clear.
type Store struct {
	db   *sql.DB
	seal *Seal
}

const schema = `
CREATE TABLE IF NOT EXISTS delegated_credential (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    access_token  TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    expires_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);`

// Open opens (creating if needed) the credential database at path.
// sealKey, when non-nil, must be 32 bytes and enables at-rest sealing.
func Open(ctx context.Context, path string, sealKey []byte) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	// A single writer keeps SQLite happy under concurrent HTTP handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("credstore: create schema: %w", err)
	}

	var seal *Seal
	if len(sealKey) > 0 {
		seal, err = NewSeal(sealKey)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db, seal: seal}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put replaces the stored delegated credential.
func (s *Store) Put(ctx context.Context, cred Credential) error {
	access, refresh := cred.AccessToken, cred.RefreshToken
	if s.seal != nil {
		var err error
		if access, err = s.seal.Encrypt(access); err != nil {
			return fmt.Errorf("credstore: seal access token: %w", err)
		}
		if refresh, err = s.seal.Encrypt(refresh); err != nil {
			return fmt.Errorf("credstore: seal refresh token: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delegated_credential (id, access_token, refresh_token, expires_at, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = excluded.refresh_token,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		access, refresh, cred.ExpiresAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("credstore: put credential: %w", err)
	}
	return nil
}

// Get returns the stored delegated credential, or ErrNoCredential.
func (s *Store) Get(ctx context.Context) (Credential, error) {
	var (
		cred             Credential
		expires, updated int64
		access, refresh  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, updated_at
		 FROM delegated_credential WHERE id = 1`,
	).Scan(&access, &refresh, &expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("credstore: get credential: %w", err)
	}

	if s.seal != nil {
		if access, err = s.seal.Decrypt(access); err != nil {
			return Credential{}, fmt.Errorf("credstore: unseal access token: %w", err)
		}
		if refresh, err = s.seal.Decrypt(refresh); err != nil {
			return Credential{}, fmt.Errorf("credstore: unseal refresh token: %w", err)
		}
	}

	cred.AccessToken = access
	cred.RefreshToken = refresh
	cred.ExpiresAt = time.Unix(expires, 0)
	cred.UpdatedAt = time.Unix(updated, 0)
	return cred, nil
}

// Delete removes the stored credential, forcing re-authorization.
func (s *Store) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM delegated_credential WHERE id = 1`); err != nil {
		return fmt.Errorf("credstore: delete credential: %w", err)
	}
	return nil
}
