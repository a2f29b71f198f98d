// Package domain contains core domain types for the VetCare session gate.
package domain

import "strings"

// Role names one of the independently authenticated areas of the app.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Credentials is the single accepted email/password pair of a role.
type Credentials struct {
	Email    string
	Password string
}

// Matches reports whether the submitted pair equals c. The email is compared
// after trimming and lowercasing, the password exactly.
func (c Credentials) Matches(email, password string) bool {
	return NormalizeEmail(email) == c.Email && password == c.Password
}

// NormalizeEmail trims surrounding whitespace and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RoleSpec holds everything that differs between the two roles.
type RoleSpec struct {
	Role        Role
	SlotKey     string
	Credentials Credentials
	Identity    Identity
	// LoginPath is where the guard sends unauthenticated requests.
	LoginPath string
	// HomePath is the post-login destination when none was carried forward.
	HomePath string
}

// UserRole is the end-user area of the clinic app.
var UserRole = RoleSpec{
	Role:    RoleUser,
	SlotKey: "vetcare-demo-auth",
	Credentials: Credentials{
		Email:    "demo@vetcare.demo",
		Password: "demo123",
	},
	Identity: Identity{
		ID:          "demo-1",
		Email:       "demo@vetcare.demo",
		DisplayName: "Demo User",
	},
	LoginPath: "/login",
	HomePath:  "/",
}

// AdminRole is the admin portal.
var AdminRole = RoleSpec{
	Role:    RoleAdmin,
	SlotKey: "vetcare-admin-auth",
	Credentials: Credentials{
		Email:    "admin@vetcare.demo",
		Password: "admin123",
	},
	Identity: Identity{
		ID:          "admin-1",
		Email:       "admin@vetcare.demo",
		DisplayName: "Admin",
	},
	LoginPath: "/admin/login",
	HomePath:  "/admin",
}

// Roles lists every role in a stable order.
func Roles() []RoleSpec {
	return []RoleSpec{UserRole, AdminRole}
}
