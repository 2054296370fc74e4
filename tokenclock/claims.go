package tokenclock

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a bearer token's claims the client relies on.
type Claims struct {
	ExpiresAt time.Time
	Subject   string
	UserID    int64
	Email     string
	Role      string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// DecodeClaims reads the claims embedded in token without verifying its
// signature; the client holds no signing key and the server remains the
// authority on validity. A malformed token or one without exp yields
// ErrInvalidToken.
func DecodeClaims(token string) (Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if tc.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.New("missing exp claim"))
	}
	return Claims{
		ExpiresAt: tc.ExpiresAt.Time,
		Subject:   tc.Subject,
		UserID:    tc.UserID,
		Email:     tc.Email,
		Role:      tc.Role,
	}, nil
}
