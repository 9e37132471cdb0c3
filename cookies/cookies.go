// Package cookies moves token pairs between the engine and HTTP responses.
// Both cookies are always httpOnly; everything else comes from
// [authkit.CookieConfig].
package cookies

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velostream/authkit"
)

// Writer writes and clears the access and refresh token cookies.
type Writer struct {
	config     authkit.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewWriter builds a [Writer] from the engine configuration. Cookie MaxAge
// follows the token TTLs.
func NewWriter(cfg authkit.CookieConfig, accessTTL, refreshTTL time.Duration) *Writer {
	return &Writer{
		config:     cfg,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Write sets both token cookies on the response.
func (w *Writer) Write(rw http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(rw, w.cookie(w.config.AccessName, accessToken, w.accessTTL))
	http.SetCookie(rw, w.cookie(w.config.RefreshName, refreshToken, w.refreshTTL))
}

// Clear expires both token cookies. Used on logout.
func (w *Writer) Clear(rw http.ResponseWriter) {
	http.SetCookie(rw, w.expired(w.config.AccessName))
	http.SetCookie(rw, w.expired(w.config.RefreshName))
}

func (w *Writer) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     w.config.Path,
		Domain:   w.config.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   w.config.Secure,
		HttpOnly: true,
		SameSite: w.config.SameSite,
	}
}

func (w *Writer) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     w.config.Path,
		Domain:   w.config.Domain,
		MaxAge:   -1,
		Secure:   w.config.Secure,
		HttpOnly: true,
		SameSite: w.config.SameSite,
	}
}

// AccessToken extracts the access token from a request: the access cookie
// first, then an Authorization bearer header as fallback.
func AccessToken(r *http.Request, cfg authkit.CookieConfig) (string, bool) {
	if c, err := r.Cookie(cfg.AccessName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// RefreshToken extracts the refresh token from a request: the refresh cookie
// first, then a "refresh_token" field in a JSON body as fallback. The body
// fallback consumes r.Body.
func RefreshToken(r *http.Request, cfg authkit.CookieConfig) (string, bool) {
	if c, err := r.Cookie(cfg.RefreshName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bodyRefreshToken(r)
}

// maxRefreshBodyBytes caps the JSON body read by the refresh-token fallback.
const maxRefreshBodyBytes = 4 << 10

func bodyRefreshToken(r *http.Request) (string, bool) {
	if r.Body == nil {
		return "", false
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRefreshBodyBytes)).Decode(&body); err != nil {
		return "", false
	}
	if body.RefreshToken == "" {
		return "", false
	}
	return body.RefreshToken, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
