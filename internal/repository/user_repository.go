package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
)

// UserRepository handles persistence for student and faculty profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the user with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password_hash, full_name, role, roll_no, department, phone, active, created_at, updated_at
FROM users WHERE LOWER(email) = LOWER($1)`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns the user with the given id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password_hash, full_name, role, roll_no, department, phone, active, created_at, updated_at
FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user profile.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	query := `INSERT INTO users (id, email, password_hash, full_name, role, roll_no, department, phone, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.Role,
		user.RollNo, user.Department, user.Phone, user.Active, user.CreatedAt, user.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Patch merges the provided profile fields into the stored row. Unset
// fields are preserved via COALESCE so repeated patches never clobber data.
func (r *UserRepository) Patch(ctx context.Context, id string, patch models.ProfilePatch) (*models.User, error) {
	query := `UPDATE users SET
	full_name  = COALESCE($2, full_name),
	roll_no    = COALESCE($3, roll_no),
	department = COALESCE($4, department),
	phone      = COALESCE($5, phone),
	updated_at = $6
WHERE id = $1
RETURNING id, email, password_hash, full_name, role, roll_no, department, phone, active, created_at, updated_at`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id,
		patch.FullName, patch.RollNo, patch.Department, patch.Phone, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &user, nil
}
