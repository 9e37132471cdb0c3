package authkit

import (
	"context"
	"log"
)

// ChangePassword replaces the password for an identity after verifying the
// current one. On success the stored refresh token is cleared, so every
// outstanding session must log in again with the new password.
func (e *Engine) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	identity, err := e.store.FindByID(ctx, identityID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, err, nil)
		return err
	}

	ok, err := e.passwordHash.Verify(oldPassword, identity.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "old_password_mismatch",
			}
		})
		return ErrInvalidCredentials
	}

	if len(newPassword) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, ErrPasswordPolicy, nil)
		return ErrPasswordPolicy
	}

	if same, err := e.passwordHash.Verify(newPassword, identity.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, identityID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, err, nil)
		return err
	}

	if err := e.store.UpdatePasswordHash(ctx, identityID, hash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, err, nil)
		return err
	}

	// A password change revokes the active session.
	if err := e.store.ClearRefreshToken(ctx, identityID); err != nil {
		log.Print("authkit: refresh token clear after password change failed")
	} else {
		e.metricInc(MetricSessionInvalidated)
	}

	if e.rateLimiter != nil {
		ip := clientIPFromContext(ctx)
		if err := e.rateLimiter.ResetLogin(ctx, identity.NormalizedUsername, ip); err != nil {
			log.Print("authkit: login limiter reset after password change failed")
		}
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, identityID, nil, nil)

	return nil
}
