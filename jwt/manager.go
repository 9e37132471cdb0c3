package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

var (
	// ErrTokenExpired marks tokens past their expiry (including leeway).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature marks signature verification failures.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenMalformed marks tokens that do not parse at all.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenUse marks a structurally valid token presented for the wrong
	// purpose, e.g. a refresh token sent where an access token is expected.
	ErrTokenUse = errors.New("token use mismatch")
)

// Config carries the issuer key material and lifetimes.
type Config struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    SigningMethod
	AccessKey        []byte
	AccessPublicKey  []byte
	RefreshKey       []byte
	RefreshPublicKey []byte
	Issuer           string
	Leeway           time.Duration
}

// Manager signs and verifies token pairs. Safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the payload of an access token. Subject holds the identity
// ID; the profile claims let callers render a user without a store lookup.
type AccessClaims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	TokenUse string `json:"tku"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token: identity ID only.
type RefreshClaims struct {
	TokenUse string `json:"tku"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
			return nil, errors.New("hs256 requires access and refresh keys")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.AccessKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPrivateKey(cfg.RefreshKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.AccessPublicKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.RefreshPublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs a short-lived access token for the identity.
func (m *Manager) CreateAccess(id, email, username, fullName string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:    email,
		Username: username,
		FullName: fullName,
		TokenUse: tokenUseAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey(m.config.AccessKey)
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// CreateRefresh signs a long-lived refresh token carrying only the identity ID.
func (m *Manager) CreateRefresh(id string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		TokenUse: tokenUseRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti makes every token unique even within one clock second,
			// which refresh rotation depends on.
			ID:        uuid.NewString(),
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey(m.config.RefreshKey)
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessKey, m.config.AccessPublicKey); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseAccess {
		return nil, ErrTokenUse
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshKey, m.config.RefreshPublicKey); err != nil {
		return nil, err
	}
	if claims.TokenUse != tokenUseRefresh {
		return nil, ErrTokenUse
	}
	if claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, privateKey, publicKey []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey(privateKey, publicKey)
	})
	if err != nil {
		return mapParseError(err)
	}
	if !token.Valid {
		return ErrTokenMalformed
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPrivateKey(key)
	}
}

func (m *Manager) verifyKey(privateKey, publicKey []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return privateKey, nil
	default:
		return parseEdPublicKey(publicKey)
	}
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
