package server

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zeusync/doublezero/internal/core/protocol"
)

const cookieIssuer = "doublezero"

// CookieSigner issues and verifies the signed client identity carried in
// the client_id cookie.
type CookieSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewCookieSigner returns a signer for secret. An empty secret is replaced
// by a random one, so cookies do not survive a restart.
func NewCookieSigner(secret string, ttl time.Duration) (*CookieSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate cookie secret: %w", err)
		}
	}
	return &CookieSigner{secret: key, ttl: ttl}, nil
}

// Issue signs a token naming id as its subject.
func (s *CookieSigner) Issue(id protocol.ClientID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  string(id),
		Issuer:   cookieIssuer,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.New().String(),
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the client named by token.
func (s *CookieSigner) Verify(token string) (protocol.ClientID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cookieIssuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return protocol.ClientID(claims.Subject), nil
}

// Cookie wraps token in the client_id cookie. It is sent cross-site, so it
// must be Secure with SameSite=None.
func (s *CookieSigner) Cookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     protocol.CookieClientID,
		Value:    token,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
	if s.ttl > 0 {
		c.MaxAge = int(s.ttl.Seconds())
	}
	return c
}

// ClientFromRequest verifies the client_id cookie of r.
func (s *CookieSigner) ClientFromRequest(r *http.Request) (protocol.ClientID, error) {
	c, err := r.Cookie(protocol.CookieClientID)
	if err != nil {
		return "", ErrUnauthorized
	}
	return s.Verify(c.Value)
}
