package authkit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/velostream/authkit/internal/rate"
	"github.com/velostream/authkit/jwt"
	"github.com/velostream/authkit/password"
)

// Engine is the credential and session lifecycle core. Build one with
// [New] and share it across goroutines; every method is safe for
// concurrent use.
type Engine struct {
	config       Config
	store        IdentityStore
	media        MediaResolver
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
}

// Close shuts down the audit dispatcher, draining buffered events. The
// engine must not be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies identifier (username or email, case-insensitive) and
// password, persists a fresh refresh token, and returns both tokens. The
// stored refresh token is overwritten, so a login invalidates any refresh
// token issued earlier for the same identity.
//
// Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials]; callers cannot distinguish the two.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.passwordHash == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	identifier = normalizeIdentifier(identifier)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
			return nil, e.failLoginRateLimited(ctx, identifier, "")
		}
	}

	if identifier == "" || pass == "" {
		return nil, e.failLogin(ctx, identifier, "", "empty_input")
	}

	identity, err := e.store.FindByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, e.failLogin(ctx, identifier, "", "identity_not_found")
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "store_lookup_failed",
			}
		})
		return nil, err
	}

	ok, verifyErr := e.passwordHash.Verify(pass, identity.PasswordHash)
	if verifyErr != nil || !ok {
		return nil, e.failLogin(ctx, identifier, identity.ID, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		if needsRehash, err := e.passwordHash.NeedsRehash(identity.PasswordHash); err == nil && needsRehash {
			if upgraded, err := e.passwordHash.Hash(pass); err == nil {
				// Rehash update is best-effort and must not block the login.
				if err := e.store.UpdatePasswordHash(ctx, identity.ID, upgraded); err != nil {
					log.Print("authkit: password hash upgrade update failed")
				}
			} else {
				log.Print("authkit: password hash upgrade generation failed")
			}
		}
	}
	pass = ""

	access, refresh, err := e.issueTokens(identity)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "token_issue_failed",
			}
		})
		return nil, err
	}

	if err := e.store.SetRefreshToken(ctx, identity.ID, refresh); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "refresh_persist_failed",
			}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, identifier, ip); err != nil {
			log.Print("authkit: login limiter reset failed")
		}
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{
		Identity:     identity.Public(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (e *Engine) failLogin(ctx context.Context, identifier, identityID, reason string) error {
	if e.rateLimiter != nil {
		ip := clientIPFromContext(ctx)
		if err := e.rateLimiter.IncrementLogin(ctx, identifier, ip); err != nil {
			return e.failLoginRateLimited(ctx, identifier, identityID)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, identityID, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
			"reason":     reason,
		}
	})
	return ErrInvalidCredentials
}

func (e *Engine) failLoginRateLimited(ctx context.Context, identifier, identityID string) error {
	e.metricInc(MetricLoginRateLimited)
	e.emitAudit(ctx, auditEventLoginRateLimited, false, identityID, ErrLoginRateLimited, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
	e.emitRateLimit(ctx, "login", func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
	return ErrLoginRateLimited
}

// Refresh rotates a refresh token: the presented token is atomically swapped
// for a fresh one and a new access token is issued. A token that was already
// rotated away fails with [ErrRefreshReuse], and the stored token is cleared
// so the holder of the newer token is logged out too.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "token_parse_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}
	identityID := claims.Subject

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, identityID); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, auditEventRefreshRateLimited, false, identityID, ErrRefreshRateLimited, nil)
			e.emitRateLimit(ctx, "refresh", nil)
			return nil, ErrRefreshRateLimited
		}
	}

	next, err := e.jwtManager.CreateRefresh(identityID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	identity, err := e.store.RotateRefreshToken(ctx, identityID, refreshToken, next)
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, identityID, ErrRefreshReuse, nil)
			return nil, ErrRefreshReuse
		case errors.Is(err, ErrRefreshMissing), errors.Is(err, ErrIdentityNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, identityID, ErrRefreshInvalid, func() map[string]string {
				return map[string]string{
					"reason": "no_active_session",
				}
			})
			return nil, ErrRefreshInvalid
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, identityID, err, nil)
			return nil, err
		}
	}

	access, err := e.jwtManager.CreateAccess(
		identity.ID,
		identity.Email,
		identity.Username,
		identity.FullName,
	)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity.ID, nil, nil)

	return &LoginResult{
		Identity:     identity.Public(),
		AccessToken:  access,
		RefreshToken: next,
	}, nil
}

// Logout clears the stored refresh token for the identity. Clearing is
// idempotent, so logging out twice succeeds. Callers authenticate the
// request themselves first, typically via [Engine.ValidateAccess].
func (e *Engine) Logout(ctx context.Context, identityID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if identityID == "" {
		return ErrIdentityNotFound
	}

	if err := e.store.ClearRefreshToken(ctx, identityID); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, identityID, nil, nil)

	return nil
}

// ValidateAccess verifies an access token and returns the embedded claims.
// This is the hot path: no store round-trips, signature and expiry checks
// only.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return AuthResult{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return AuthResult{}, ErrTokenInvalid
	}

	if !start.IsZero() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	return AuthResult{
		IdentityID: claims.Subject,
		Username:   claims.Username,
		Email:      claims.Email,
		FullName:   claims.FullName,
	}, nil
}

func (e *Engine) issueTokens(identity Identity) (access, refresh string, err error) {
	access, err = e.jwtManager.CreateAccess(
		identity.ID,
		identity.Email,
		identity.Username,
		identity.FullName,
	)
	if err != nil {
		return "", "", err
	}

	refresh, err = e.jwtManager.CreateRefresh(identity.ID)
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}
