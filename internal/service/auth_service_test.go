package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type stubUserRepo struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byEmail: make(map[string]*models.User),
		byID:    make(map[string]*models.User),
	}
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-new"
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func newAuthFixture() (*AuthService, *stubUserRepo) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		Secret:     "test-jwt-secret",
		Expiration: time.Hour,
		Issuer:     "attendance-test",
	})
	return svc, repo
}

func seedUser(repo *stubUserRepo, email, password string, role models.UserRole, active bool) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Seeded User",
		Role:         role,
		Active:       active,
	}
	repo.byEmail[email] = user
	repo.byID[user.ID] = user
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthFixture()

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "Student@Example.com",
		Password: "secret123",
		FullName: "A Student",
		Role:     "STUDENT",
		RollNo:   "21115001",
	})
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", info.Email, "email stored lowercased")
	assert.Equal(t, models.RoleStudent, info.Role)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "student@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, info.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "taken@example.com", "pw", models.RoleFaculty, true)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "taken@example.com",
		Password: "secret123",
		FullName: "Another",
		Role:     "FACULTY",
	})
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "fac@example.com", "correct", models.RoleFaculty, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "fac@example.com",
		Password: "wrong",
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidLogin)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@example.com",
		Password: "whatever",
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidLogin)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "gone@example.com", "pw123456", models.RoleStudent, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "gone@example.com",
		Password: "pw123456",
	})
	require.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.ValidateToken("not.a.token")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
