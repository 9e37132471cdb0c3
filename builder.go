package authkit

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/velostream/authkit/internal/rate"
	"github.com/velostream/authkit/jwt"
	"github.com/velostream/authkit/password"
)

// Builder wires an [Engine]. A builder is single-use: Build fails on the
// second call so half-configured engines cannot escape.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     IdentityStore
	media     MediaResolver
	auditSink AuditSink

	built bool
}

// New starts a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder configuration. Key material is cloned.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the rate limiters. Optional;
// without it no throttling runs.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore supplies the persistence backend. Required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.store = store
	return b
}

// WithMediaResolver supplies the profile media resolver. Optional; without it
// registration skips media resolution and avatar references are not required.
func (b *Builder) WithMediaResolver(resolver MediaResolver) *Builder {
	b.media = resolver
	return b
}

// WithAuditSink supplies the audit event destination. Events only flow when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	throttlesEnabled := cfg.Security.EnableIPThrottle ||
		cfg.Security.EnableRefreshThrottle ||
		cfg.Security.EnableRegistrationThrottle
	if b.redis == nil && throttlesEnabled {
		return nil, errors.New("throttling requires a redis client")
	}

	engine := &Engine{
		config: cfg,
		store:  b.store,
		media:  b.media,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:           cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:      cfg.Security.EnableRefreshThrottle,
			EnableRegistrationThrottle: cfg.Security.EnableRegistrationThrottle,
			MaxLoginAttempts:           cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:      cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:         cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration:    cfg.Security.RefreshCooldownDuration,
			MaxRegistrationAttempts:    cfg.Security.MaxRegistrationAttempts,
			RegistrationCooldown:       cfg.Security.RegistrationCooldown,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		SigningMethod:    jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessKey:        cloneBytes(cfg.JWT.AccessKey),
		AccessPublicKey:  cloneBytes(cfg.JWT.AccessPublicKey),
		RefreshKey:       cloneBytes(cfg.JWT.RefreshKey),
		RefreshPublicKey: cloneBytes(cfg.JWT.RefreshPublicKey),
		Issuer:           cfg.JWT.Issuer,
		Leeway:           cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
