package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// Role enumerates account roles, ordered by privilege.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAgent      Role = "AGENT"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperadmin Role = "SUPERADMIN"
)

// Valid reports whether the role is a known one.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleManager, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to helpdesk personnel.
func (r Role) IsStaff() bool {
	return r != RoleUser && r.Valid()
}

// User is the domain model for everyone interacting with the helpdesk,
// end-users and staff alike.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanBeAssigned reports whether tickets may be assigned to this user.
func (u *User) CanBeAssigned() bool {
	return u.Role == RoleAgent && u.Status == UserStatusActive
}
