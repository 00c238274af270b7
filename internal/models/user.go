package models

import "time"

// UserRole represents the available roles for route gating.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleFaculty UserRole = "FACULTY"
	RoleStudent UserRole = "STUDENT"
)

// User represents a student or faculty profile stored in the users table.
// The row is owned by the authenticated principal it describes.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	RollNo       *string   `db:"roll_no" json:"roll_no,omitempty"`
	Department   *string   `db:"department" json:"department,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProfilePatch carries partial profile updates. Nil fields are left untouched
// so repeated patches merge rather than overwrite.
type ProfilePatch struct {
	FullName   *string `json:"full_name"`
	RollNo     *string `json:"roll_no"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
}

// Empty reports whether the patch carries no changes.
func (p ProfilePatch) Empty() bool {
	return p.FullName == nil && p.RollNo == nil && p.Department == nil && p.Phone == nil
}
