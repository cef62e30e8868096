// Package auth issues and validates the bearer tokens that gate router sessions
// and the admin API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrEmptyToken is returned when no token was presented.
	ErrEmptyToken = errors.New("token cannot be empty")
	// ErrEmptyAuthID is returned when asked to issue a token without an identity.
	ErrEmptyAuthID = errors.New("authid cannot be empty")
)

// Claims are the JWT claims carried by router tokens.
type Claims struct {
	AuthID  string `json:"authid"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth handles token creation and validation with an HMAC secret.
type JWTAuth struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTAuth creates a token authority signing with secretKey.
func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{
		secretKey: []byte(secretKey),
		ttl:       DefaultTokenTTL,
		now:       time.Now,
	}
}

// WithTTL overrides the token lifetime.
func (j *JWTAuth) WithTTL(ttl time.Duration) *JWTAuth {
	if ttl > 0 {
		j.ttl = ttl
	}
	return j
}

// GenerateToken creates a signed token for authID.
func (j *JWTAuth) GenerateToken(authID string, isAdmin bool) (string, time.Time, error) {
	if authID == "" {
		return "", time.Time{}, ErrEmptyAuthID
	}

	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := Claims{
		AuthID:  authID,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   authID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks a token, with or without its "Bearer " prefix, and returns its claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = BearerToken(tokenString)
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Authenticate validates a token and returns the identity it was issued to.
func (j *JWTAuth) Authenticate(token string) (string, error) {
	claims, err := j.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.AuthID, nil
}

// BearerToken strips an optional "Bearer " scheme from an authorization value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
