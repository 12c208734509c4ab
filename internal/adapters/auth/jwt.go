// Package auth verifies the opaque bearer credential presented by clients.
// Token issuance lives in the account service; this side only validates.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Whisper/internal/domain"
)

// JWTAuthenticator validates HS256 tokens whose subject is the user id.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWT(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (domain.UserID, error) {
	if token == "" {
		return "", domain.ErrUnauthenticated
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnauthenticated, err)
	}
	if claims.Subject == "" || len(claims.Subject) > domain.MaxUserIDLen {
		return "", domain.ErrUnauthenticated
	}
	return domain.UserID(claims.Subject), nil
}

// Issue mints a token for user. Meant for dev tooling and tests; production
// clients bring tokens from the account service.
func (a *JWTAuthenticator) Issue(user domain.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(user),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
