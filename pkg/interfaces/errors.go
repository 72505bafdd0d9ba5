package interfaces

import "errors"

// ErrUnauthorized is returned for missing, expired or revoked sessions.
var ErrUnauthorized = errors.New("unauthorized access")
