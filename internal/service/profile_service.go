package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Patch(ctx context.Context, id string, patch models.ProfilePatch) (*models.User, error)
}

// ProfileService reads and merges the caller's own profile. Profiles are
// only ever mutated by their owner.
type ProfileService struct {
	repo   profileRepository
	logger *zap.Logger
}

// NewProfileService constructs the service.
func NewProfileService(repo profileRepository, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, logger: logger}
}

// Me returns the caller's profile.
func (s *ProfileService) Me(ctx context.Context, principalID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return user, nil
}

// UpdateMe merges the patch into the caller's profile. Fields omitted from
// the patch keep their stored values.
func (s *ProfileService) UpdateMe(ctx context.Context, principalID string, patch models.ProfilePatch) (*models.User, error) {
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no profile fields provided")
	}
	user, err := s.repo.Patch(ctx, principalID, patch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
	}
	return user, nil
}
