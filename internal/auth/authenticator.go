package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"gateway-service/internal/gateway"
)

// DefaultRole is assumed when the handshake names no role and the token
// carries none.
const DefaultRole = "user"

// JWTAuthenticator validates handshake credentials. A signed token wins over
// the plain userId/role parameters; a bare userId is accepted as-is because
// the upstream identity provider fronting the gateway has already vetted it.
// Absence of both token and userId is an authentication failure.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate implements gateway.Authenticator.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token, userID, role string) (gateway.AuthResult, error) {
	if token != "" {
		return a.fromToken(token, role)
	}
	if userID != "" {
		if role == "" {
			role = DefaultRole
		}
		return gateway.AuthResult{Authenticated: true, UserID: userID, Role: role}, nil
	}
	return gateway.AuthResult{}, nil
}

func (a *JWTAuthenticator) fromToken(tokenString, fallbackRole string) (gateway.AuthResult, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return gateway.AuthResult{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return gateway.AuthResult{}, fmt.Errorf("invalid token claims")
	}

	userID := claimString(claims, "user_id")
	if userID == "" {
		userID = claimString(claims, "sub")
	}
	if userID == "" {
		return gateway.AuthResult{}, fmt.Errorf("token carries no user id")
	}
	role := claimString(claims, "role")
	if role == "" {
		role = fallbackRole
	}
	if role == "" {
		role = DefaultRole
	}
	return gateway.AuthResult{Authenticated: true, UserID: userID, Role: role}, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
