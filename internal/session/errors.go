package session

import "errors"

var (
	ErrInvalidTTL     = errors.New("session ttl must be greater than 0")
	ErrInvalidUser    = errors.New("session requires a user id and username")
	ErrMissingCookie  = errors.New("session cookie missing")
	ErrTokenRevoked   = errors.New("session token revoked")
	ErrMalformedToken = errors.New("session token malformed")
)
