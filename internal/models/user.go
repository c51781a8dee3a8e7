package models

import "time"

type UserRole string

const (
	RolePublic UserRole = "public"
	RoleASHA   UserRole = "asha"
	RoleLeader UserRole = "leader"
	RoleAdmin  UserRole = "admin"
)

func IsValidRole(role UserRole) bool {
	switch role {
	case RolePublic, RoleASHA, RoleLeader, RoleAdmin:
		return true
	}
	return false
}

// HasAnyRole reports whether role is one of allowed.
func HasAnyRole(role UserRole, allowed ...UserRole) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        *string   `json:"phone,omitempty"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasPhone reports whether the user can receive text messages.
func (u User) HasPhone() bool {
	return u.Phone != nil && *u.Phone != ""
}
