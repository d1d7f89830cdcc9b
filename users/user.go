// Package users stores user accounts and their profiles.
//
// A User owns exactly one UserInfo. Both rows are created together and the
// profile is removed by the store when its user is deleted. Timestamps are
// always assigned by the store.
package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account.
type User struct {
	ID           uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Info         UserInfo  `json:"info"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserInfo is the profile attached to a user. Every field but the ids and
// timestamps is optional.
type UserInfo struct {
	ID         uuid.UUID `json:"info_id"`
	UserID     uuid.UUID `json:"user_id"`
	FirstName  *string   `json:"first_name,omitempty" validate:"omitempty,max=100"`
	MiddleName *string   `json:"middle_name,omitempty" validate:"omitempty,max=100"`
	LastName   *string   `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Username   *string   `json:"username,omitempty" validate:"omitempty,username"`
	AvatarURL  *string   `json:"avatar_url,omitempty" validate:"omitempty,avatar_url"`
	Bio        *string   `json:"bio,omitempty" validate:"omitempty,max=2000"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName returns "Last First Middle". Without both first and last name it
// falls back to whichever one is set, or "" when neither is.
func (i UserInfo) FullName() string {
	first, last := deref(i.FirstName), deref(i.LastName)
	switch {
	case first != "" && last != "":
		parts := []string{last, first}
		if middle := deref(i.MiddleName); middle != "" {
			parts = append(parts, middle)
		}
		return strings.Join(parts, " ")
	case first != "":
		return first
	default:
		return last
	}
}

// HasProfileData reports whether a first name, last name or username is set.
func (i UserInfo) HasProfileData() bool {
	return deref(i.FirstName) != "" || deref(i.LastName) != "" || deref(i.Username) != ""
}

// NewUser is the input to CreateUser. PasswordHash is stored as given; use
// HashPassword to produce one.
type NewUser struct {
	Email        string `validate:"required,email,max=255"`
	PasswordHash string `validate:"required"`
	Role         Role   `validate:"role"`
	Info         UserInfo
}

// InfoPatch lists profile fields to change. Nil fields are left alone; a
// pointer to "" clears the field.
type InfoPatch struct {
	FirstName  *string `validate:"omitempty,max=100"`
	MiddleName *string `validate:"omitempty,max=100"`
	LastName   *string `validate:"omitempty,max=100"`
	Username   *string `validate:"omitempty,username"`
	AvatarURL  *string `validate:"omitempty,avatar_url"`
	Bio        *string `validate:"omitempty,max=2000"`
}

// IsEmpty reports whether the patch changes nothing.
func (p InfoPatch) IsEmpty() bool {
	return p.FirstName == nil && p.MiddleName == nil && p.LastName == nil &&
		p.Username == nil && p.AvatarURL == nil && p.Bio == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable maps "" to SQL NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
