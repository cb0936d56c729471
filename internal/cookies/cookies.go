// Package cookies implements the signed cookie codec used for the auth
// session and the short-lived verification cookie. Cookie values carry only
// an opaque id; an HMAC-SHA256 signature prevents tampering. Signing keys
// come from SESSION_SECRET, which is comma-separable so keys can be rotated:
// the first key signs new cookies, every key is accepted when verifying.
package cookies

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Cookie names. The verification cookie stages pending 2FA logins and
// federated onboarding state; it must never be mistaken for the auth cookie.
const (
	SessionCookieName = "gc_session"
	VerifyCookieName  = "gc_verification"
)

// ErrInvalidSignature is returned when a cookie value is missing its
// signature or the signature does not verify against any configured key.
var ErrInvalidSignature = errors.New("cookie signature invalid")

// Signer signs and verifies cookie values.
type Signer struct {
	keys [][]byte
}

// NewSigner creates a Signer from the configured secret keys. The first
// key is the active signing key.
func NewSigner(secrets []string) *Signer {
	keys := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		keys = append(keys, []byte(s))
	}
	return &Signer{keys: keys}
}

// Sign returns "value.signature" where signature is the base64url-encoded
// HMAC-SHA256 of value under the active key.
func (s *Signer) Sign(value string) string {
	mac := hmac.New(sha256.New, s.keys[0])
	mac.Write([]byte(value))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return value + "." + sig
}

// Verify checks a signed cookie value against every configured key and
// returns the embedded value. Constant-time comparison on each candidate.
func (s *Signer) Verify(signed string) (string, error) {
	i := strings.LastIndex(signed, ".")
	if i <= 0 || i == len(signed)-1 {
		return "", ErrInvalidSignature
	}
	value, sigPart := signed[:i], signed[i+1:]

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", ErrInvalidSignature
	}

	for _, key := range s.keys {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(value))
		if subtle.ConstantTimeCompare(sig, mac.Sum(nil)) == 1 {
			return value, nil
		}
	}
	return "", ErrInvalidSignature
}

// --- Echo helpers ---

// Set writes a signed, httpOnly cookie. maxAge <= 0 makes it a session
// cookie (expires when the browser closes).
func (s *Signer) Set(c echo.Context, name, value string, maxAge time.Duration) {
	req := c.Request()
	cookie := &http.Cookie{
		Name:     name,
		Value:    s.Sign(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	c.SetCookie(cookie)
}

// Get reads and verifies a signed cookie. Returns empty string if the
// cookie is absent, empty, or fails signature verification.
func (s *Signer) Get(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	value, err := s.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return value
}

// Clear removes a cookie by setting MaxAge to -1.
func Clear(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
