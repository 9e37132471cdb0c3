package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.AccessKey = []byte("test-access-secret")
	cfg.JWT.RefreshKey = []byte("test-refresh-secret")
	cfg.JWT.Issuer = "authkit-test"
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	cfg.Security.MaxRefreshAttempts = 50
	cfg.Security.RefreshCooldownDuration = time.Minute
	cfg.Security.MaxRegistrationAttempts = 5
	cfg.Security.RegistrationCooldown = time.Minute
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store IdentityStore) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func registerTestIdentity(t *testing.T, engine *Engine, username, email, pass string) Identity {
	t.Helper()

	identity, err := engine.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: pass,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return identity
}

// memStore is an in-memory IdentityStore with the same semantics the bundled
// stores implement, including clear-on-mismatch rotation.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]Identity
	byLogin map[string]string
	seq     int
}

func newMemStore() *memStore {
	return &memStore{
		byID:    make(map[string]Identity),
		byLogin: make(map[string]string),
	}
}

func (s *memStore) FindByLogin(_ context.Context, login string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byLogin[login]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return s.byID[id], nil
}

func (s *memStore) FindByID(_ context.Context, id string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (s *memStore) Create(_ context.Context, input CreateIdentityInput) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byLogin[input.NormalizedUsername]; taken {
		return Identity{}, ErrDuplicateIdentity
	}
	if _, taken := s.byLogin[input.NormalizedEmail]; taken {
		return Identity{}, ErrDuplicateIdentity
	}

	s.seq++
	now := time.Now().UTC()
	identity := Identity{
		ID:                 fmt.Sprintf("id-%d", s.seq),
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
	s.byID[identity.ID] = identity
	s.byLogin[identity.NormalizedUsername] = identity.ID
	s.byLogin[identity.NormalizedEmail] = identity.ID
	return identity, nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = time.Now().UTC()
	s.byID[id] = identity
	return nil
}

func (s *memStore) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.RefreshToken = token
	s.byID[id] = identity
	return nil
}

func (s *memStore) RotateRefreshToken(_ context.Context, id, current, next string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	if identity.RefreshToken == "" {
		return Identity{}, ErrRefreshMissing
	}
	if identity.RefreshToken != current {
		identity.RefreshToken = ""
		s.byID[id] = identity
		return Identity{}, ErrRefreshMismatch
	}
	identity.RefreshToken = next
	identity.UpdatedAt = time.Now().UTC()
	s.byID[id] = identity
	return identity, nil
}

func (s *memStore) ClearRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil
	}
	identity.RefreshToken = ""
	s.byID[id] = identity
	return nil
}

func (s *memStore) storedRefresh(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].RefreshToken
}

var _ IdentityStore = (*memStore)(nil)

// stubResolver is a MediaResolver returning deterministic URLs, or failing
// when broken.
type stubResolver struct {
	broken bool
}

func (r *stubResolver) Resolve(_ context.Context, kind MediaKind, ref string) (string, error) {
	if r.broken {
		return "", fmt.Errorf("object storage offline")
	}
	return "https://cdn.example.com/" + string(kind) + "/" + strings.TrimSpace(ref), nil
}
