package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordSuccess(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	if err := engine.ChangePassword(ctx, created.ID, "correct-horse-battery", "entirely-new-secret"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice", "correct-horse-battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice", "entirely-new-secret"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordRevokesSession(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	ctx := context.Background()
	login, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.ChangePassword(ctx, created.ID, "correct-horse-battery", "entirely-new-secret"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if stored := store.storedRefresh(t, created.ID); stored != "" {
		t.Fatalf("expected stored refresh token cleared, got %q", stored)
	}
	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after password change, got %v", err)
	}
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	err := engine.ChangePassword(context.Background(), created.ID, "wrong-password-entirely", "entirely-new-secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	err := engine.ChangePassword(context.Background(), created.ID, "correct-horse-battery", "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if Classify(err) != KindValidation {
		t.Fatalf("expected KindValidation, got %v", Classify(err))
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	created := registerTestIdentity(t, engine, "alice", "alice@example.com", "correct-horse-battery")

	err := engine.ChangePassword(context.Background(), created.ID, "correct-horse-battery", "correct-horse-battery")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordUnknownIdentity(t *testing.T) {
	store := newMemStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()

	err := engine.ChangePassword(context.Background(), "no-such-id", "correct-horse-battery", "entirely-new-secret")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}
