package interfaces

import (
	"strconv"
	"time"
)

// Principal is the authenticated identity behind a cookie.
type Principal struct {
	UserID   int    `json:"id"`
	Username string `json:"username"`
}

// Key is the identifier used to group a principal's connections. It is the
// user ID, which survives renames and never collides between accounts.
func (p Principal) Key() string {
	return strconv.Itoa(p.UserID)
}

// SessionManager issues and checks login cookies.
type SessionManager interface {
	// Issue returns a signed token for the user and its expiry.
	Issue(userID int, username string) (token string, expires time.Time, err error)

	// Validate resolves a token to its principal. Expired, revoked or
	// tampered tokens return ErrUnauthorized.
	Validate(token string) (Principal, error)

	// Revoke invalidates a token before its expiry. Unknown tokens are ignored.
	Revoke(token string)
}
