package authkit

import (
	"context"
	"time"
)

// Identity is the full account record exchanged with an [IdentityStore].
// PasswordHash and RefreshToken never leave the engine: results returned to
// callers go through [Identity.Public].
type Identity struct {
	ID                 string
	Username           string
	NormalizedUsername string
	Email              string
	NormalizedEmail    string
	FullName           string
	AvatarURL          string
	CoverURL           string
	PasswordHash       string
	RefreshToken       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Public returns a copy of the identity with credential material stripped.
func (i Identity) Public() Identity {
	i.PasswordHash = ""
	i.RefreshToken = ""
	return i
}

// CreateIdentityInput is the input for [IdentityStore.Create]. Normalized
// fields are lowercase-trimmed by the engine before the store sees them.
type CreateIdentityInput struct {
	Username           string
	NormalizedUsername string
	Email              string
	NormalizedEmail    string
	FullName           string
	AvatarURL          string
	CoverURL           string
	PasswordHash       string
}

// IdentityStore is the persistence contract callers implement (or take from
// the redistore/pgstore subpackages) to integrate authkit with their
// database. Implementations signal failures with the package sentinels:
// [ErrIdentityNotFound], [ErrDuplicateIdentity], [ErrRefreshMismatch],
// [ErrRefreshMissing], and [ErrStoreUnavailable] for infrastructure faults.
type IdentityStore interface {
	// FindByLogin resolves a normalized username or normalized email.
	FindByLogin(ctx context.Context, login string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	// Create persists a new identity, enforcing username and email uniqueness.
	Create(ctx context.Context, input CreateIdentityInput) (Identity, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// SetRefreshToken unconditionally overwrites the stored refresh token.
	// A login therefore invalidates any previously issued refresh token.
	SetRefreshToken(ctx context.Context, id, token string) error
	// RotateRefreshToken atomically replaces the stored refresh token only if
	// it still equals current. The comparison and swap must be a single
	// linearizable step so concurrent rotations produce exactly one winner.
	// On mismatch the stored token is cleared and ErrRefreshMismatch returned.
	RotateRefreshToken(ctx context.Context, id, current, next string) (Identity, error)
	// ClearRefreshToken removes the stored refresh token. Idempotent.
	ClearRefreshToken(ctx context.Context, id string) error
}

// MediaKind distinguishes profile media slots for [MediaResolver].
type MediaKind string

const (
	// MediaAvatar is the required profile image slot.
	MediaAvatar MediaKind = "avatar"
	// MediaCover is the optional banner image slot.
	MediaCover MediaKind = "cover"
)

// MediaResolver turns caller-supplied media references (upload handles, local
// paths) into durable public URLs during registration. Failures are surfaced
// as [ErrMediaUnavailable]. The resolver is optional; without one the engine
// skips media resolution entirely.
type MediaResolver interface {
	Resolve(ctx context.Context, kind MediaKind, ref string) (string, error)
}

// RegisterRequest is the input for [Engine.Register]. Username, Email,
// FullName, and Password are required. AvatarRef is required when a
// [MediaResolver] is configured; CoverRef is always optional.
type RegisterRequest struct {
	Username  string
	Email     string
	FullName  string
	Password  string
	AvatarRef string
	CoverRef  string
}

// LoginResult is returned by [Engine.Login] and [Engine.Refresh].
type LoginResult struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.ValidateAccess]. It carries the claims
// embedded in the access token; no store lookup is performed.
type AuthResult struct {
	IdentityID string
	Username   string
	Email      string
	FullName   string
}
