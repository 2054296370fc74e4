package tokenclock

import "errors"

var (
	// ErrInvalidToken indicates the token's claims could not be decoded.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the token's exp instant has passed.
	ErrExpiredToken = errors.New("token expired")
)
