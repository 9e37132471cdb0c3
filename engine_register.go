package authkit

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	maxFullNameLength = 128
)

// Register creates a new identity. Username and email are unique after
// normalization (trim + lowercase), so "Alice" and "alice" collide. When a
// [MediaResolver] is configured AvatarRef is required and resolved to a URL
// before the identity is persisted; CoverRef is optional either way.
//
// Registration does not log the identity in. Callers follow up with
// [Engine.Login].
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Identity, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return Identity{}, ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRegistration(ctx, clientIPFromContext(ctx)); err != nil {
			e.metricInc(MetricRegisterRateLimited)
			e.emitAudit(ctx, auditEventRegisterRateLimited, false, "", ErrRegistrationRateLimited, nil)
			e.emitRateLimit(ctx, "registration", nil)
			return Identity{}, ErrRegistrationRateLimited
		}
	}

	input, err := e.validateRegistration(req)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"username": req.Username,
			}
		})
		return Identity{}, err
	}

	if e.media != nil {
		avatarURL, err := e.media.Resolve(ctx, MediaAvatar, req.AvatarRef)
		if err != nil {
			e.metricInc(MetricMediaResolveFailure)
			e.metricInc(MetricRegisterFailure)
			wrapped := errors.Join(ErrMediaUnavailable, err)
			e.emitAudit(ctx, auditEventMediaResolutionFailure, false, "", wrapped, func() map[string]string {
				return map[string]string{
					"kind": string(MediaAvatar),
				}
			})
			return Identity{}, wrapped
		}
		input.AvatarURL = avatarURL

		if req.CoverRef != "" {
			coverURL, err := e.media.Resolve(ctx, MediaCover, req.CoverRef)
			if err != nil {
				e.metricInc(MetricMediaResolveFailure)
				e.metricInc(MetricRegisterFailure)
				wrapped := errors.Join(ErrMediaUnavailable, err)
				e.emitAudit(ctx, auditEventMediaResolutionFailure, false, "", wrapped, func() map[string]string {
					return map[string]string{
						"kind": string(MediaCover),
					}
				})
				return Identity{}, wrapped
			}
			input.CoverURL = coverURL
		}
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return Identity{}, err
	}
	input.PasswordHash = hash

	identity, err := e.store.Create(ctx, input)
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrIdentityExists, func() map[string]string {
				return map[string]string{
					"username": input.NormalizedUsername,
				}
			})
			return Identity{}, ErrIdentityExists
		}
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return Identity{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, identity.ID, nil, func() map[string]string {
		return map[string]string{
			"username": identity.NormalizedUsername,
		}
	})

	return identity.Public(), nil
}

func (e *Engine) validateRegistration(req RegisterRequest) (CreateIdentityInput, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	fullName := strings.TrimSpace(req.FullName)

	if username == "" || email == "" || fullName == "" || req.Password == "" {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}
	if strings.ContainsAny(username, " \t\n@") {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}
	if len(fullName) > maxFullNameLength {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}
	if len(req.Password) < e.config.Password.MinLength {
		return CreateIdentityInput{}, ErrPasswordPolicy
	}
	if e.media != nil && strings.TrimSpace(req.AvatarRef) == "" {
		return CreateIdentityInput{}, ErrRegistrationInvalid
	}

	return CreateIdentityInput{
		Username:           username,
		NormalizedUsername: normalizeIdentifier(username),
		Email:              email,
		NormalizedEmail:    normalizeIdentifier(email),
		FullName:           fullName,
	}, nil
}

// normalizeIdentifier lowercases and trims an identifier so uniqueness and
// lookups are case-insensitive.
func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
