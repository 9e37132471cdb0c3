package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, cfg), mr, mr.Close
}

func loginConfig() Config {
	return Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	}
}

func TestLoginBudget(t *testing.T) {
	limiter, _, done := newTestLimiter(t, loginConfig())
	defer done()

	ctx := context.Background()

	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected fresh identifier allowed, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("increment %d failed: %v", i, err)
		}
	}

	// Budget exhausted but not exceeded; the next increment trips it.
	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected check at budget allowed, got %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on check, got %v", err)
	}

	// Another identifier is unaffected.
	if err := limiter.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("expected other identifier allowed, got %v", err)
	}
}

func TestCheckLoginDoesNotConsume(t *testing.T) {
	limiter, _, done := newTestLimiter(t, loginConfig())
	defer done()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
	}

	attempts, err := limiter.GetLoginAttempts(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLoginAttempts failed: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d", attempts)
	}
}

func TestResetLogin(t *testing.T) {
	limiter, _, done := newTestLimiter(t, loginConfig())
	defer done()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		limiter.IncrementLogin(ctx, "alice", "")
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if err := limiter.ResetLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected allowed after reset, got %v", err)
	}
	attempts, err := limiter.GetLoginAttempts(ctx, "alice")
	if err != nil || attempts != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d err=%v", attempts, err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	limiter, mr, done := newTestLimiter(t, loginConfig())
	defer done()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		limiter.IncrementLogin(ctx, "alice", "")
	}
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected allowed after window expiry, got %v", err)
	}
}

func TestIPThrottle(t *testing.T) {
	cfg := loginConfig()
	cfg.EnableIPThrottle = true

	limiter, _, done := newTestLimiter(t, cfg)
	defer done()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		limiter.IncrementLogin(ctx, "alice", "203.0.113.7")
	}

	// Same IP, different identifier: blocked by the IP counter.
	if err := limiter.CheckLogin(ctx, "bob", "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited via IP counter, got %v", err)
	}
	// Different IP: only the identifier counter applies.
	if err := limiter.CheckLogin(ctx, "bob", "198.51.100.1"); err != nil {
		t.Fatalf("expected other IP allowed, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	cfg := Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	}
	limiter, mr, done := newTestLimiter(t, cfg)
	defer done()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := limiter.CheckRefresh(ctx, "id-1"); err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
	}
	if err := limiter.CheckRefresh(ctx, "id-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := limiter.CheckRefresh(ctx, "id-2"); err != nil {
		t.Fatalf("expected other identity allowed, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := limiter.CheckRefresh(ctx, "id-1"); err != nil {
		t.Fatalf("expected allowed after window expiry, got %v", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	limiter, _, done := newTestLimiter(t, Config{EnableRefreshThrottle: false})
	defer done()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := limiter.CheckRefresh(ctx, "id-1"); err != nil {
			t.Fatalf("expected no throttling, got %v", err)
		}
	}
}

func TestRegistrationThrottle(t *testing.T) {
	cfg := Config{
		EnableRegistrationThrottle: true,
		MaxRegistrationAttempts:    2,
		RegistrationCooldown:       time.Minute,
	}
	limiter, _, done := newTestLimiter(t, cfg)
	defer done()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := limiter.CheckRegistration(ctx, "203.0.113.7"); err != nil {
			t.Fatalf("registration %d failed: %v", i, err)
		}
	}
	if err := limiter.CheckRegistration(ctx, "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A blank IP is never throttled.
	for i := 0; i < 10; i++ {
		if err := limiter.CheckRegistration(ctx, ""); err != nil {
			t.Fatalf("expected blank IP allowed, got %v", err)
		}
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(client, loginConfig())
	mr.Close()

	ctx := context.Background()
	if err := limiter.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
