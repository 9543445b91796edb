// Package auth issues and verifies the session credential a Stream
// Client presents to a broker gateway's REST-sibling endpoint before the
// streaming handshake, grounded on the teacher's
// go-server/internal/auth/jwt.go (adapted from an HTTP server's inbound
// verification middleware to a client's outbound credential minting).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the account and API key pair a minted credential is
// scoped to.
type Claims struct {
	AccountID string `json:"accountId"`
	APIKeyID  string `json:"apiKeyId"`
	jwt.RegisteredClaims
}

// Manager mints and verifies session credentials with one symmetric
// signing key.
type Manager struct {
	secretKey []byte
	ttl       time.Duration
}

// NewManager builds a Manager. ttl bounds how long a minted credential is
// valid.
func NewManager(secretKey string, ttl time.Duration) *Manager {
	return &Manager{secretKey: []byte(secretKey), ttl: ttl}
}

// Mint issues a signed credential for accountID/apiKeyID.
func (m *Manager) Mint(accountID, apiKeyID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		APIKeyID:  apiKeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    "gatewayclient",
			Subject:   accountID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses and validates a credential previously returned by Mint,
// used to sanity-check a token this process is about to present (or one a
// peer returned to us to echo back).
func (m *Manager) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid credential: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid credential claims")
	}
	return claims, nil
}
