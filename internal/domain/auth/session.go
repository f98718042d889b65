package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// User identifies the account a session belongs to.
type User struct {
	ID    string
	Email string
	Name  string
}

// DisplayName returns the name when set, the email otherwise.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session is the persisted proof of authentication. Its presence in the
// device store is the only signal that the client is authenticated.
type Session struct {
	Token string
	User  User
}

// ExpiresAt reads the exp claim of the session token without verifying the
// signature. It returns false when the token is not a JWT or carries no exp.
func (s Session) ExpiresAt() (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ErrNoSession is returned when an operation needs a stored session and none
// exists.
var ErrNoSession = errors.New("not authenticated")
