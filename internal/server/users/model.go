// Package users implements the user directory: credential-verified login and
// permission-gated create/read/update/delete against the credential store.
package users

import "github.com/allenzhangsg/rbac/internal/server/store"

// Capability strings granted independently of role.
const (
	CanCreateUser = "CanCreateUser"
	CanReadUser   = "CanReadUser"
	CanUpdateUser = "CanUpdateUser"
	CanDeleteUser = "CanDeleteUser"
)

// Role names. The set is open; these are the two the gate configuration
// refers to.
const (
	RoleAdmin = "Admin"
	RoleStaff = "Staff"
)

// User is the read-side view of a directory record. It has no password hash
// field at all, so redaction holds on every read path by construction.
type User struct {
	ID          int      `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Website     string   `json:"website,omitempty"`
}

func fromItem(item *store.UserItem) *User {
	return &User{
		ID:          item.ID,
		Username:    item.Username,
		Role:        item.Role,
		Permissions: item.Permissions,
		Name:        item.Name,
		Email:       item.Email,
		Phone:       item.Phone,
		Website:     item.Website,
	}
}

// CreateRequest carries the fields accepted when creating a directory record.
type CreateRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Website     string   `json:"website"`
}
