// Package auth verifies session tokens and mints transport connection tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager validates session JWTs issued by the account service.
type JWTManager struct {
	secretKey string // Shared HMAC secret (from environment)
}

// Claims is the session token payload.
type Claims struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	jwt.RegisteredClaims        // Includes ExpiresAt, IssuedAt, etc.
}

// NewJWTManager returns a configured JWTManager.
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: secretKey}
}

// VerifyToken parses and validates a session token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	// ParseWithClaims validates the signature; the callback pins the
	// signing method so an asymmetric-key token cannot slip through.
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	// Covers signature and expiration.
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.UserID == "" {
		return nil, errors.New("token missing user_id")
	}
	return claims, nil
}

// TokenMinter issues short-lived tokens that authenticate a user to the
// realtime transport. The transport verifies them with the same shared
// secret, so no round trip back to this service is needed on connect.
type TokenMinter struct {
	secretKey string
	ttl       time.Duration
}

// NewTokenMinter returns a TokenMinter with the given secret and lifetime.
func NewTokenMinter(secretKey string, ttl time.Duration) *TokenMinter {
	return &TokenMinter{secretKey: secretKey, ttl: ttl}
}

// ConnectionToken mints a signed transport token for a user.
func (m *TokenMinter) ConnectionToken(userID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}
