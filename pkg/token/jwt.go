// Package token issues and verifies session-scoped JSON Web Tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid session token")

// JWTManager signs and verifies session tokens.
type JWTManager struct {
	secretKey  []byte
	sessionDur time.Duration
}

// SessionClaims binds a token to one chat session and its completion provider.
type SessionClaims struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a JWTManager. sessionExpireHours <= 0 defaults to 24 hours.
func NewJWTManager(secret string, sessionExpireHours int) *JWTManager {
	if sessionExpireHours <= 0 {
		sessionExpireHours = 24
	}
	return &JWTManager{
		secretKey:  []byte(secret),
		sessionDur: time.Hour * time.Duration(sessionExpireHours),
	}
}

// SessionDuration is how long an issued token stays valid.
func (m *JWTManager) SessionDuration() time.Duration {
	return m.sessionDur
}

// GenerateToken issues a token for sessionID.
func (m *JWTManager) GenerateToken(sessionID, provider string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		Provider:  provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken parses tokenString and returns its claims if the token is valid.
func (m *JWTManager) VerifyToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
