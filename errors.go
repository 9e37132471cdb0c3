package authkit

import "errors"

var (
	// ErrUnauthorized is the generic rejection for requests without a usable credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords
	// so that login failures cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityNotFound is returned by identity stores for missing records.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityExists is returned when registration collides with an existing
	// username or email.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrDuplicateIdentity is the store-level duplicate signal mapped to
	// ErrIdentityExists by the engine.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrRegistrationInvalid rejects registration requests with missing or
	// malformed fields.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrPasswordPolicy rejects passwords below the configured minimum.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects password changes that keep the current password.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrLoginRateLimited signals the login throttle fired.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited signals the refresh throttle fired.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrRegistrationRateLimited signals the registration throttle fired.
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	// ErrTokenInvalid covers malformed, mis-signed, or expired access tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid covers absent, malformed, expired, or already-cleared
	// refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse signals a refresh token that was valid once but no longer
	// matches the stored token: rotation already consumed it.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshMismatch is the store-level compare-and-set failure mapped to
	// ErrRefreshReuse by the engine.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
	// ErrRefreshMissing is returned by stores when no refresh token is on record.
	ErrRefreshMissing = errors.New("no refresh token on record")
	// ErrMediaUnavailable wraps media resolver failures during registration.
	ErrMediaUnavailable = errors.New("media resolver unavailable")
	// ErrStoreUnavailable wraps identity store infrastructure failures.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrEngineNotReady is returned when Engine methods run before Build wired
	// the required dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind classifies engine errors into the coarse categories callers map to
// transport status codes.
type Kind uint8

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	// KindValidation marks malformed or incomplete input.
	KindValidation
	// KindConflict marks uniqueness collisions.
	KindConflict
	// KindNotFound marks lookups for absent records.
	KindNotFound
	// KindUnauthorized marks rejected credentials and tokens.
	KindUnauthorized
	// KindUpstream marks failures in caller-supplied collaborators such as the
	// media resolver.
	KindUpstream
)

// Classify maps err to its [Kind]. Wrapped errors are unwrapped via errors.Is,
// so store implementations can decorate sentinels with context.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrRegistrationInvalid),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse):
		return KindValidation
	case errors.Is(err, ErrIdentityExists),
		errors.Is(err, ErrDuplicateIdentity):
		return KindConflict
	case errors.Is(err, ErrIdentityNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRefreshReuse),
		errors.Is(err, ErrRefreshMismatch),
		errors.Is(err, ErrRefreshMissing),
		errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited),
		errors.Is(err, ErrRegistrationRateLimited):
		return KindUnauthorized
	case errors.Is(err, ErrMediaUnavailable):
		return KindUpstream
	default:
		return KindInternal
	}
}
