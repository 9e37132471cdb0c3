// Package redistore is the Redis-backed [authkit.IdentityStore]. Identities
// live in hashes, uniqueness is enforced through index keys, and refresh
// rotation runs as a Lua compare-and-swap so concurrent rotations produce
// exactly one winner.
package redistore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/velostream/authkit"
)

const (
	createStatusUsernameTaken int64 = 0
	createStatusEmailTaken    int64 = 1
	createStatusCreated       int64 = 2
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMissing  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

const createIdentityScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 1
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
return 2
`

var createIdentityLua = redis.NewScript(createIdentityScript)

const rotateRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local stored = redis.call("HGET", KEYS[1], "refresh_token")
if not stored or stored == "" then
  return {1}
end
if stored ~= ARGV[1] then
  redis.call("HSET", KEYS[1], "refresh_token", "")
  return {2}
end
redis.call("HSET", KEYS[1], "refresh_token", ARGV[2], "updated_at", ARGV[3])
return {3, redis.call("HGETALL", KEYS[1])}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Store implements [authkit.IdentityStore] on Redis hashes.
//
// Key layout (prefix defaults to "aki"):
//   - <prefix>:<id>       identity hash
//   - <prefix>x:u:<name>  username index, value is the identity ID
//   - <prefix>x:e:<mail>  email index, value is the identity ID
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] on the given Redis client. prefix namespaces
// every key; pass "" for the default.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "aki"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) identityKey(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) usernameKey(normalizedUsername string) string {
	return s.prefix + "x:u:" + normalizedUsername
}

func (s *Store) emailKey(normalizedEmail string) string {
	return s.prefix + "x:e:" + normalizedEmail
}

// FindByLogin resolves a normalized username or email through the index keys
// and loads the identity.
func (s *Store) FindByLogin(ctx context.Context, login string) (authkit.Identity, error) {
	id, err := s.redis.Get(ctx, s.usernameKey(login)).Result()
	if errors.Is(err, redis.Nil) {
		id, err = s.redis.Get(ctx, s.emailKey(login)).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authkit.Identity{}, authkit.ErrIdentityNotFound
		}
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	return s.FindByID(ctx, id)
}

// FindByID loads an identity hash by ID.
func (s *Store) FindByID(ctx context.Context, id string) (authkit.Identity, error) {
	fields, err := s.redis.HGetAll(ctx, s.identityKey(id)).Result()
	if err != nil {
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return authkit.Identity{}, authkit.ErrIdentityNotFound
	}

	return decodeIdentity(id, fields), nil
}

// Create persists a new identity. Username and email uniqueness are checked
// and claimed in a single Lua script, so two concurrent registrations for the
// same identifier cannot both succeed.
func (s *Store) Create(ctx context.Context, input authkit.CreateIdentityInput) (authkit.Identity, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	identity := authkit.Identity{
		ID:                 id,
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

	args := make([]interface{}, 0, 1+2*11)
	args = append(args, id)
	args = append(args, encodeIdentity(identity)...)

	status, err := createIdentityLua.Run(
		ctx,
		s.redis,
		[]string{
			s.identityKey(id),
			s.usernameKey(input.NormalizedUsername),
			s.emailKey(input.NormalizedEmail),
		},
		args...,
	).Int64()
	if err != nil {
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	switch status {
	case createStatusCreated:
		return identity, nil
	case createStatusUsernameTaken, createStatusEmailTaken:
		return authkit.Identity{}, authkit.ErrDuplicateIdentity
	default:
		return authkit.Identity{}, fmt.Errorf("%w: unknown create script status %d", authkit.ErrStoreUnavailable, status)
	}
}

// UpdatePasswordHash replaces the stored password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.setFields(ctx, id, "password_hash", hash)
}

// SetRefreshToken unconditionally overwrites the stored refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.setFields(ctx, id, "refresh_token", token)
}

// RotateRefreshToken swaps current for next in a single Lua script. On
// mismatch the stored token is cleared so a stolen token cannot be retried.
func (s *Store) RotateRefreshToken(ctx context.Context, id, current, next string) (authkit.Identity, error) {
	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.identityKey(id)},
		current,
		next,
		strconv.FormatInt(time.Now().UTC().Unix(), 10),
	).Result()
	if err != nil {
		return authkit.Identity{}, fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return authkit.Identity{}, fmt.Errorf("%w: invalid rotate script response", authkit.ErrStoreUnavailable)
	}
	status, ok := parts[0].(int64)
	if !ok {
		return authkit.Identity{}, fmt.Errorf("%w: invalid rotate script status", authkit.ErrStoreUnavailable)
	}

	switch status {
	case rotateStatusNotFound:
		return authkit.Identity{}, authkit.ErrIdentityNotFound
	case rotateStatusMissing:
		return authkit.Identity{}, authkit.ErrRefreshMissing
	case rotateStatusMismatch:
		return authkit.Identity{}, authkit.ErrRefreshMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return authkit.Identity{}, fmt.Errorf("%w: missing rotate script payload", authkit.ErrStoreUnavailable)
		}
		fields, err := decodeScriptHash(parts[1])
		if err != nil {
			return authkit.Identity{}, err
		}
		return decodeIdentity(id, fields), nil
	default:
		return authkit.Identity{}, fmt.Errorf("%w: unknown rotate script status %d", authkit.ErrStoreUnavailable, status)
	}
}

// ClearRefreshToken blanks the stored refresh token. Idempotent: clearing an
// already-empty token or a missing identity is not an error.
func (s *Store) ClearRefreshToken(ctx context.Context, id string) error {
	exists, err := s.redis.Exists(ctx, s.identityKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return nil
	}
	return s.setFields(ctx, id, "refresh_token", "")
}

// Delete removes an identity and its index keys. Mainly used by tests and
// admin tooling.
func (s *Store) Delete(ctx context.Context, id string) error {
	identity, err := s.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, authkit.ErrIdentityNotFound) {
			return nil
		}
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.identityKey(id))
		pipe.Del(ctx, s.usernameKey(identity.NormalizedUsername))
		pipe.Del(ctx, s.emailKey(identity.NormalizedEmail))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) setFields(ctx context.Context, id string, pairs ...interface{}) error {
	exists, err := s.redis.Exists(ctx, s.identityKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	if exists == 0 {
		return authkit.ErrIdentityNotFound
	}

	pairs = append(pairs, "updated_at", strconv.FormatInt(time.Now().UTC().Unix(), 10))
	if err := s.redis.HSet(ctx, s.identityKey(id), pairs...).Err(); err != nil {
		return fmt.Errorf("%w: %v", authkit.ErrStoreUnavailable, err)
	}
	return nil
}

func encodeIdentity(identity authkit.Identity) []interface{} {
	return []interface{}{
		"username", identity.Username,
		"normalized_username", identity.NormalizedUsername,
		"email", identity.Email,
		"normalized_email", identity.NormalizedEmail,
		"full_name", identity.FullName,
		"avatar_url", identity.AvatarURL,
		"cover_url", identity.CoverURL,
		"password_hash", identity.PasswordHash,
		"refresh_token", identity.RefreshToken,
		"created_at", strconv.FormatInt(identity.CreatedAt.Unix(), 10),
		"updated_at", strconv.FormatInt(identity.UpdatedAt.Unix(), 10),
	}
}

func decodeIdentity(id string, fields map[string]string) authkit.Identity {
	return authkit.Identity{
		ID:                 id,
		Username:           fields["username"],
		NormalizedUsername: fields["normalized_username"],
		Email:              fields["email"],
		NormalizedEmail:    fields["normalized_email"],
		FullName:           fields["full_name"],
		AvatarURL:          fields["avatar_url"],
		CoverURL:           fields["cover_url"],
		PasswordHash:       fields["password_hash"],
		RefreshToken:       fields["refresh_token"],
		CreatedAt:          unixField(fields, "created_at"),
		UpdatedAt:          unixField(fields, "updated_at"),
	}
}

func unixField(fields map[string]string, name string) time.Time {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

var _ authkit.IdentityStore = (*Store)(nil)

// decodeScriptHash converts the HGETALL reply embedded in a Lua script
// response (a flat field/value array) into a map.
func decodeScriptHash(raw interface{}) (map[string]string, error) {
	entries, ok := raw.([]interface{})
	if !ok || len(entries)%2 != 0 {
		return nil, fmt.Errorf("%w: invalid hash payload", authkit.ErrStoreUnavailable)
	}

	fields := make(map[string]string, len(entries)/2)
	for i := 0; i < len(entries); i += 2 {
		k, kOK := entries[i].(string)
		v, vOK := entries[i+1].(string)
		if !kOK || !vOK {
			return nil, fmt.Errorf("%w: invalid hash payload", authkit.ErrStoreUnavailable)
		}
		fields[k] = v
	}
	return fields, nil
}
