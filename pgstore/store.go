// Package pgstore is the PostgreSQL-backed [authkit.IdentityStore]. Refresh
// rotation takes a row lock so the compare-and-swap is a single linearizable
// step, matching the redistore Lua script semantics.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velostream/authkit"
)

const uniqueViolationCode = "23505"

// Schema is the DDL the store expects. Callers run it through their own
// migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
    id                  UUID PRIMARY KEY,
    username            TEXT NOT NULL,
    normalized_username TEXT NOT NULL UNIQUE,
    email               TEXT NOT NULL,
    normalized_email    TEXT NOT NULL UNIQUE,
    full_name           TEXT NOT NULL,
    avatar_url          TEXT NOT NULL DEFAULT '',
    cover_url           TEXT NOT NULL DEFAULT '',
    password_hash       TEXT NOT NULL,
    refresh_token       TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
`

const identityColumns = `id, username, normalized_username, email, normalized_email,
       full_name, avatar_url, cover_url, password_hash, refresh_token,
       created_at, updated_at`

// Store implements [authkit.IdentityStore] on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the identities table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByLogin resolves a normalized username or email.
func (s *Store) FindByLogin(ctx context.Context, login string) (authkit.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE normalized_username = $1 OR normalized_email = $1
	`, login)
	return scanIdentity(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (authkit.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)
	return scanIdentity(row)
}

// Create inserts a new identity. Uniqueness rides on the normalized column
// unique indexes, so concurrent registrations for the same identifier resolve
// to exactly one winner.
func (s *Store) Create(ctx context.Context, input authkit.CreateIdentityInput) (authkit.Identity, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	identity := authkit.Identity{
		ID:                 uuid.NewString(),
		Username:           input.Username,
		NormalizedUsername: input.NormalizedUsername,
		Email:              input.Email,
		NormalizedEmail:    input.NormalizedEmail,
		FullName:           input.FullName,
		AvatarURL:          input.AvatarURL,
		CoverURL:           input.CoverURL,
		PasswordHash:       input.PasswordHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (
			id, username, normalized_username, email, normalized_email,
			full_name, avatar_url, cover_url, password_hash, refresh_token,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, $11)
	`,
		identity.ID,
		identity.Username,
		identity.NormalizedUsername,
		identity.Email,
		identity.NormalizedEmail,
		identity.FullName,
		identity.AvatarURL,
		identity.CoverURL,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return authkit.Identity{}, authkit.ErrDuplicateIdentity
		}
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	return identity, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateField(ctx, id, "password_hash", hash)
}

// SetRefreshToken unconditionally overwrites the stored refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.updateField(ctx, id, "refresh_token", token)
}

// RotateRefreshToken swaps current for next under a row lock. On mismatch
// the stored token is cleared in the same transaction so a stolen token
// cannot be retried.
func (s *Store) RotateRefreshToken(ctx context.Context, id, current, next string) (authkit.Identity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var stored string
	err = tx.QueryRow(ctx, `
		SELECT refresh_token FROM identities WHERE id = $1 FOR UPDATE
	`, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authkit.Identity{}, authkit.ErrIdentityNotFound
		}
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	if stored == "" {
		return authkit.Identity{}, authkit.ErrRefreshMissing
	}

	now := time.Now().UTC()

	if stored != current {
		if _, err := tx.Exec(ctx, `
			UPDATE identities SET refresh_token = '', updated_at = $2 WHERE id = $1
		`, id, now); err != nil {
			return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
		}
		return authkit.Identity{}, authkit.ErrRefreshMismatch
	}

	row := tx.QueryRow(ctx, `
		UPDATE identities SET refresh_token = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+identityColumns+`
	`, id, next, now)

	identity, err := scanIdentity(row)
	if err != nil {
		return authkit.Identity{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	return identity, nil
}

// ClearRefreshToken blanks the stored refresh token. Idempotent.
func (s *Store) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE identities SET refresh_token = '', updated_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time database availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) updateField(ctx context.Context, id, column, value string) error {
	// column comes from a fixed caller set, never user input.
	result, err := s.pool.Exec(ctx, `
		UPDATE identities SET `+column+` = $2, updated_at = $3 WHERE id = $1
	`, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	if result.RowsAffected() == 0 {
		return authkit.ErrIdentityNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (authkit.Identity, error) {
	var identity authkit.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.NormalizedUsername,
		&identity.Email,
		&identity.NormalizedEmail,
		&identity.FullName,
		&identity.AvatarURL,
		&identity.CoverURL,
		&identity.PasswordHash,
		&identity.RefreshToken,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authkit.Identity{}, authkit.ErrIdentityNotFound
		}
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return identity, nil
}

var _ authkit.IdentityStore = (*Store)(nil)
