package authkit

import (
	"errors"
	"net/http"
	"time"
)

// Config carries every engine tuning knob. Treat instances as immutable after
// Build: the builder clones key material defensively.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Cookies  CookieConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token issuer. Access and refresh tokens are signed
// with separate key material; for hs256 both keys are raw secrets, for
// ed25519 they are private keys (raw or PEM) with matching public keys.
type JWTConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    string // "ed25519" (default), "hs256" optional
	AccessKey        []byte
	AccessPublicKey  []byte
	RefreshKey       []byte
	RefreshPublicKey []byte
	Issuer           string
	Leeway           time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id work factor and the login-time upgrade
// switch. MinLength applies to registration and password changes.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the cookies written by the cookies subpackage. Cookies
// are always httpOnly; Secure and SameSite are configurable for local
// development setups.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig tunes the Redis-backed throttles.
type SecurityConfig struct {
	EnableIPThrottle           bool
	EnableRefreshThrottle      bool
	EnableRegistrationThrottle bool
	MaxLoginAttempts           int
	LoginCooldownDuration      time.Duration
	MaxRefreshAttempts         int
	RefreshCooldownDuration    time.Duration
	MaxRegistrationAttempts    int
	RegistrationCooldown       time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics collectors.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended production baseline. Callers must
// still supply signing keys before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    10 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			UpgradeOnLogin: true,
		},
		Cookies: CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			Secure:      true,
			SameSite:    http.SameSiteStrictMode,
		},
		Security: SecurityConfig{
			EnableIPThrottle:           false,
			EnableRefreshThrottle:      true,
			EnableRegistrationThrottle: true,
			MaxLoginAttempts:           5,
			LoginCooldownDuration:      15 * time.Minute,
			MaxRefreshAttempts:         20,
			RefreshCooldownDuration:    1 * time.Minute,
			MaxRegistrationAttempts:    5,
			RegistrationCooldown:       15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessKey = cloneBytes(cfg.JWT.AccessKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshKey = cloneBytes(cfg.JWT.RefreshKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with. Build calls it
// automatically.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.AccessKey) == 0 {
		return errors.New("JWT AccessKey is required")
	}
	if len(c.JWT.RefreshKey) == 0 {
		return errors.New("JWT RefreshKey is required")
	}
	if c.JWT.SigningMethod == "ed25519" {
		if len(c.JWT.AccessPublicKey) == 0 {
			return errors.New("ed25519 requires AccessPublicKey")
		}
		if len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("ed25519 requires RefreshPublicKey")
		}
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return errors.New("Cookie names must not be empty")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookie names must differ")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0")
		}
	}
	if c.Security.EnableRegistrationThrottle {
		if c.Security.MaxRegistrationAttempts <= 0 {
			return errors.New("Security MaxRegistrationAttempts must be > 0")
		}
		if c.Security.RegistrationCooldown <= 0 {
			return errors.New("Security RegistrationCooldown must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
