// Package auth implements the authorization gate: bearer-token verification
// against the platform's signing key. Accounts themselves live with the
// external identity authority; this package only turns tokens into
// identities.
package auth

import (
	"context"
	"errors"
	"time"

	"melodia-chat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the chat engine consumes. The identity
// authority issues tokens with the user id in the subject and an optional
// display name.
type Claims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 bearer tokens.
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		leeway: 30 * time.Second,
	}
}

// Verify implements domain.TokenVerifier. Any failure, including context
// expiry, yields an unauthorized-kind error; a token is never accepted on
// timeout.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, domain.Unauthorizedf("token verification cancelled")
	}
	if token == "" {
		return domain.Identity{}, domain.Unauthorizedf("missing bearer token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, domain.Unauthorizedf("token expired")
		}
		return domain.Identity{}, domain.Unauthorizedf("invalid token")
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.Unauthorizedf("invalid token")
	}

	return domain.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
	}, nil
}

func (v *JWTVerifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}
