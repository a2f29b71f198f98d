package domain

import "errors"

var (
	// ErrInvalidCredentials is a login with a non-matching email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCorruptSession is a persisted slot that is unreadable or not a valid Identity.
	ErrCorruptSession = errors.New("corrupt or missing session")
)
