// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrUserMissing = errors.New("user ref missing")
)

// UserRef identifies an already-authenticated user. Credential checks
// happen upstream; this core only carries the reference around.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewUserRef is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUserRef(id, name string) (UserRef, error) {
	if id == "" || name == "" {
		return UserRef{}, ErrUserMissing
	}
	if len(name) > MaxDisplayNameLen {
		return UserRef{}, ErrNameTooLong
	}
	return UserRef{ID: id, Name: name}, nil
}

// Valid reports whether the ref can stand for a member.
func (u UserRef) Valid() bool {
	return u.ID != "" && u.Name != ""
}
