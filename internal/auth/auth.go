// Package auth issues and checks the bearer tokens that identify users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
	iatClaim    = "iat"
)

var ErrInvalidToken = errors.New("invalid token")

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)

	return userId, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

type TokenManager struct {
	key []byte
	// ttl of zero issues tokens that never expire
	ttl time.Duration
	now func() time.Time
}

func NewTokenManager(key []byte, ttl time.Duration) *TokenManager {
	return &TokenManager{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
}

func (m *TokenManager) Sign(userId int) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		userIdClaim: userId,
		iatClaim:    now.Unix(),
	}
	if m.ttl > 0 {
		claims[expClaim] = now.Add(m.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// Verify checks the token signature and expiry and returns its user id.
func (m *TokenManager) Verify(tokenString string) (int, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok || userId <= 0 {
		return 0, fmt.Errorf("%w: invalid user id claim", ErrInvalidToken)
	}

	return int(userId), nil
}
