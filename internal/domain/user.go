package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID           ID        `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	IsAdmin      bool      `json:"isAdmin"`
}

func (u *User) Validate() error {
	switch {
	case u.ID == "":
		return fmt.Errorf("%w: user id is empty", ErrMalformedRecord)
	case u.Email == "" || u.Username == "":
		return fmt.Errorf("%w: user %s is missing email or username", ErrMalformedRecord, u.ID)
	case u.PasswordHash == "":
		return fmt.Errorf("%w: user %s has no password hash", ErrMalformedRecord, u.ID)
	}
	return nil
}

func (u *User) Role() Role {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleMember
}

// Session is the authenticated identity returned by a successful login.
type Session struct {
	UserID      ID     `json:"user_id"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}
