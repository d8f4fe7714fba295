// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

// UserID is the opaque stable identity supplied by the authentication
// collaborator. The signaling core never creates or destroys these.
type UserID string

// Validate bounds the identity length so a client cannot bloat the
// presence index with arbitrary payloads posing as ids.
func (id UserID) Validate() error {
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// Status is a user's aggregate reachability: online while at least one
// live connection is bound to the user, offline otherwise.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)
