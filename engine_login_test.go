package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestLoginSuccess(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	result, err := engine.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if result.AccessToken == result.RefreshToken {
		t.Fatal("expected distinct access and refresh tokens")
	}
	if result.Identity.ID != created.ID {
		t.Fatalf("expected identity %s, got %s", created.ID, result.Identity.ID)
	}
	if result.Identity.PasswordHash != "" || result.Identity.RefreshToken != "" {
		t.Fatal("expected credential material stripped from result")
	}

	if stored := store.storedRefresh(t, created.ID); stored != result.RefreshToken {
		t.Fatal("expected refresh token persisted in store")
	}

	auth, err := engine.ValidateAccess(context.Background(), result.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if auth.IdentityID != created.ID || auth.Username != "alice" {
		t.Fatalf("unexpected auth result %+v", auth)
	}
}

func TestLoginByEmailCaseInsensitive(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	if _, err := engine.Login(context.Background(), "ALICE@Example.COM", "correct-horse-battery"); err != nil {
		t.Fatalf("email login failed: %v", err)
	}
	if _, err := engine.Login(context.Background(), "  Alice  ", "correct-horse-battery"); err != nil {
		t.Fatalf("username login failed: %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	_, unknownErr := engine.Login(context.Background(), "nobody", "correct-horse-battery")
	_, wrongPassErr := engine.Login(context.Background(), "alice", "wrong-password-entirely")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown identifier, got %v", unknownErr)
	}
	if !errors.Is(wrongPassErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassErr)
	}
	if unknownErr.Error() != wrongPassErr.Error() {
		t.Fatal("expected identical error messages for both failure modes")
	}
}

func TestLoginEmptyPassword(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	_, err := engine.Login(context.Background(), "alice", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 2

	store := newMemStore()
	engine, done := newTestEngine(t, cfg, store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := engine.Login(ctx, "alice", "wrong-password-entirely")
		if i < 2 && !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited even with the right password, got %v", err)
	}
}

func TestLoginResetsAttemptCounter(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxLoginAttempts = 3

	store := newMemStore()
	engine, done := newTestEngine(t, cfg, store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password-entirely"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if _, err := engine.Login(ctx, "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("expected successful login, got %v", err)
	}

	// The counter was reset, so two more failures stay under the cap.
	for i := 0; i < 2; i++ {
		if _, err := engine.Login(ctx, "alice", "wrong-password-entirely"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials after reset, got %v", err)
		}
	}
}

func TestLoginOverwritesStoredRefreshToken(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	first, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	// The first session's refresh token no longer matches the stored one.
	_, err = engine.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse for the superseded token, got %v", err)
	}

	// Reuse detection cleared the stored token, so the second session's
	// token is dead as well.
	_, err = engine.Refresh(ctx, second.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after invalidation, got %v", err)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.UpgradeOnLogin = true

	store := newMemStore()
	engine, done := newTestEngine(t, cfg, store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	// Plant a hash produced with weaker parameters than the engine's.
	weakCfg := testConfig()
	weakCfg.Password.Time = 1
	weakStore := newMemStore()
	weakEngine, weakDone := newTestEngine(t, weakCfg, weakStore)
	weakHash, err := weakEngine.passwordHash.Hash("correct-horse-battery")
	weakDone()
	if err != nil {
		t.Fatalf("weak hash failed: %v", err)
	}
	if err := store.UpdatePasswordHash(context.Background(), created.ID, weakHash); err != nil {
		t.Fatalf("planting weak hash failed: %v", err)
	}

	if _, err := engine.Login(context.Background(), "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	upgraded := store.byID[created.ID].PasswordHash
	if upgraded == weakHash {
		t.Fatal("expected hash upgraded on login")
	}
	if needs, err := engine.passwordHash.NeedsRehash(upgraded); err != nil || needs {
		t.Fatalf("expected upgraded hash at current parameters, needs=%v err=%v", needs, err)
	}
}
