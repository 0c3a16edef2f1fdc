package domain

import (
	"strings"
	"time"
)

// UserStatus definition user account status
type UserStatus string

const (
	// UserStatusActive user can sign in and participate
	UserStatusActive UserStatus = "active"
	// UserStatusInactive user is temporarily disabled
	UserStatusInactive UserStatus = "inactive"
	// UserStatusRemoved user is soft-deleted
	UserStatusRemoved UserStatus = "removed"
)

// User represents a family member. Authentication and profile management
// live in a separate subsystem; the messaging core only reads identity
// fields for membership checks, mention resolution and rendering.
type User struct {
	ID        string     `gorm:"primaryKey;type:uuid"`
	Email     string     `gorm:"uniqueIndex;not null"`
	FirstName string     `gorm:"not null"`
	LastName  string     `gorm:"not null"`
	Role      string     `gorm:"not null;default:member"`
	Status    UserStatus `gorm:"not null;default:active"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName returns the user's full name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Initials returns the avatar placeholder initials.
func (u *User) Initials() string {
	initials := ""
	for _, part := range []string{u.FirstName, u.LastName} {
		for _, r := range part {
			initials += string(r)
			break
		}
	}
	return strings.ToUpper(initials)
}

// IsAdmin check user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}

// IsActive check user account is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
