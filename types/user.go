package types

import "time"

// Role names. The set is fixed; see internal/rbac for what each may do.
const (
	RoleCommandingOfficer  = "Commanding Officer"
	RoleTransportOfficer   = "Transport Officer"
	RoleMaintenanceOfficer = "Maintenance Officer"
	RoleTransportJCO       = "Transport JCO"
	RoleMaintenanceJCO     = "Maintenance JCO"
)

// Roles lists every role a user may hold.
var Roles = []string{
	RoleCommandingOfficer,
	RoleTransportOfficer,
	RoleMaintenanceOfficer,
	RoleTransportJCO,
	RoleMaintenanceJCO,
}

// IsValidRole reports whether role is one of the fixed role names.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents an account in the system.
// It contains identity, service record, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id" bson:"_id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username" bson:"username"`

	// Email is the user's unique, lowercased email address.
	Email string `json:"email" db:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash" bson:"password_hash"`

	FirstName string `json:"firstName" db:"first_name" bson:"first_name"`
	LastName  string `json:"lastName" db:"last_name" bson:"last_name"`
	Rank      string `json:"rank" db:"rank" bson:"rank"`

	// ServiceNumber is the unit-issued identifier; unique like Username and Email.
	ServiceNumber string `json:"serviceNumber" db:"service_number" bson:"service_number"`

	// Role is one of Roles and determines the user's permissions.
	Role string `json:"role" db:"role" bson:"role"`

	Unit        string `json:"unit" db:"unit" bson:"unit"`
	Location    string `json:"location" db:"location" bson:"location"`
	PhoneNumber string `json:"phoneNumber,omitempty" db:"phone_number" bson:"phone_number,omitempty"`

	// IsActive is false for soft-deactivated accounts, which can neither
	// log in nor use existing sessions.
	IsActive bool `json:"isActive" db:"is_active" bson:"is_active"`

	// LastLogin is the time of the most recent successful login.
	LastLogin *time.Time `json:"lastLogin,omitempty" db:"last_login" bson:"last_login,omitempty"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" bson:"updated_at"`
}

// PublicUser is the subset of User returned alongside session data.
type PublicUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Public returns the client-safe view of u.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
