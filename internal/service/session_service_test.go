package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/qr"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type stubSessionRepo struct {
	sessions map[string]*models.Session
	tokens   map[string]*models.SessionToken
	upserts  int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{
		sessions: make(map[string]*models.Session),
		tokens:   make(map[string]*models.SessionToken),
	}
}

func (s *stubSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = "sess-new"
	}
	session.Active = true
	session.StartedAt = time.Now().UTC()
	s.sessions[session.ID] = session
	return nil
}

func (s *stubSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		dup := *sess
		return &dup, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubSessionRepo) Stop(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	sess, ok := s.sessions[id]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.Active = false
	sess.EndedAt = &endedAt
	return true, nil
}

func (s *stubSessionRepo) UpsertToken(ctx context.Context, token *models.SessionToken) error {
	s.tokens[token.SessionID] = token
	s.upserts++
	return nil
}

func (s *stubSessionRepo) DeleteToken(ctx context.Context, sessionID string) error {
	delete(s.tokens, sessionID)
	return nil
}

type stubCourseReader struct {
	courses map[string]*models.Course
}

func (s *stubCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := s.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

func newSessionFixture() (*SessionService, *stubSessionRepo, *testClock) {
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	signer := qr.NewSigner("test-secret", clock.Now)
	repo := newStubSessionRepo()
	courses := &stubCourseReader{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", FacultyID: "fac-1", Active: true},
	}}
	svc := NewSessionService(repo, courses, signer, SessionConfig{
		DefaultValidity: 5 * time.Minute,
		DefaultRadiusM:  50,
		QRImageSize:     128,
	}, nil, nil)
	return svc, repo, clock
}

func TestStartSessionIssuesToken(t *testing.T) {
	svc, repo, clock := newSessionFixture()

	result, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1",
		Lat:      12.0,
		Lon:      77.0,
	})
	require.NoError(t, err)
	assert.True(t, result.Session.Active)
	assert.Equal(t, 50.0, result.Session.RadiusM, "default radius applied")
	assert.Equal(t, result.Session.ID, result.Payload.SessionID)
	assert.NotEmpty(t, result.Payload.Signature)
	assert.NotEmpty(t, result.Encoded)
	assert.NotEmpty(t, result.ImagePNG)
	assert.Equal(t, clock.now.Add(5*time.Minute), result.ExpiresAt)

	token := repo.tokens[result.Session.ID]
	require.NotNil(t, token, "token persisted alongside session")
	assert.Equal(t, result.Payload.Signature, token.Signature)
}

func TestStartSessionOwnerOnly(t *testing.T) {
	svc, _, _ := newSessionFixture()

	_, err := svc.Start(context.Background(), "fac-2", StartSessionRequest{
		CourseID: "course-1",
		Lat:      12.0,
		Lon:      77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestStartSessionRejectsBadCoordinates(t *testing.T) {
	svc, _, _ := newSessionFixture()

	_, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1",
		Lat:      95.0,
		Lon:      77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStartSessionAcceptsZeroCoordinates(t *testing.T) {
	svc, _, _ := newSessionFixture()

	// The equator and the Greenwich meridian are real places; the zero
	// value must not read as "missing".
	result, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1",
		Lat:      0,
		Lon:      36.8,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Session.Lat)

	result, err = svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1",
		Lat:      51.48,
		Lon:      0,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Session.Lon)
}

func TestRefreshTokenReplacesSignature(t *testing.T) {
	svc, repo, clock := newSessionFixture()

	started, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1", Lat: 12.0, Lon: 77.0,
	})
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	refreshed, err := svc.RefreshToken(context.Background(), "fac-1", started.Session.ID)
	require.NoError(t, err)

	assert.NotEqual(t, started.Payload.Signature, refreshed.Payload.Signature)
	assert.Equal(t, refreshed.Payload.Signature, repo.tokens[started.Session.ID].Signature,
		"persisted token carries the new signature only")
	assert.Equal(t, 2, repo.upserts)
}

func TestRefreshTokenStoppedSession(t *testing.T) {
	svc, _, _ := newSessionFixture()

	started, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1", Lat: 12.0, Lon: 77.0,
	})
	require.NoError(t, err)

	_, err = svc.Stop(context.Background(), "fac-1", started.Session.ID)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), "fac-1", started.Session.ID)
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestStopSession(t *testing.T) {
	svc, repo, _ := newSessionFixture()

	started, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1", Lat: 12.0, Lon: 77.0,
	})
	require.NoError(t, err)

	stopped, err := svc.Stop(context.Background(), "fac-1", started.Session.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Active)
	require.NotNil(t, stopped.EndedAt)
	assert.Nil(t, repo.tokens[started.Session.ID], "token discarded on stop")

	// Stopping twice is a conflict, not a silent success.
	_, err = svc.Stop(context.Background(), "fac-1", started.Session.ID)
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestStopSessionOwnerOnly(t *testing.T) {
	svc, _, _ := newSessionFixture()

	started, err := svc.Start(context.Background(), "fac-1", StartSessionRequest{
		CourseID: "course-1", Lat: 12.0, Lon: 77.0,
	})
	require.NoError(t, err)

	_, err = svc.Stop(context.Background(), "fac-2", started.Session.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestStopSessionNotFound(t *testing.T) {
	svc, _, _ := newSessionFixture()

	_, err := svc.Stop(context.Background(), "fac-1", "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
