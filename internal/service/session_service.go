package service

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/geo"
	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/qr"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Stop(ctx context.Context, id string, endedAt time.Time) (bool, error)
	UpsertToken(ctx context.Context, token *models.SessionToken) error
	DeleteToken(ctx context.Context, sessionID string) error
}

type sessionCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// SessionConfig carries issuance defaults for the lifecycle manager.
type SessionConfig struct {
	DefaultValidity time.Duration
	DefaultRadiusM  float64
	QRImageSize     int
}

// SessionService drives the created → active → stopped lifecycle of class
// sessions and the issuance of their QR tokens. Expired tokens are never
// swept: expiry is enforced lazily at verification time.
type SessionService struct {
	sessions  sessionRepository
	courses   sessionCourseReader
	signer    *qr.Signer
	config    SessionConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs the session service.
func NewSessionService(sessions sessionRepository, courses sessionCourseReader, signer *qr.Signer, config SessionConfig, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if config.DefaultValidity <= 0 {
		config.DefaultValidity = 5 * time.Minute
	}
	if config.DefaultRadiusM <= 0 {
		config.DefaultRadiusM = 50
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{sessions: sessions, courses: courses, signer: signer, config: config, validator: validate, logger: logger}
}

// StartSessionRequest describes the payload for starting a session.
// Lat/Lon deliberately carry no "required" tag: zero is a legitimate
// coordinate, so range checking is left to geo.ValidCoordinate.
type StartSessionRequest struct {
	CourseID        string  `json:"course_id" validate:"required"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	RadiusM         float64 `json:"radius_m"`
	ValiditySeconds int     `json:"validity_seconds"`
}

// SessionTokenResult bundles a session with its freshly issued QR artifacts.
type SessionTokenResult struct {
	Session   *models.Session  `json:"session"`
	Payload   models.QRPayload `json:"payload"`
	Encoded   string           `json:"encoded"`
	ImagePNG  string           `json:"image_png_base64,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Start creates an active session for a course the caller owns and issues
// its first QR token.
func (s *SessionService) Start(ctx context.Context, facultyID string, req StartSessionRequest) (*SessionTokenResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !geo.ValidCoordinate(req.Lat, req.Lon) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "latitude/longitude out of range")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, storageErr(err, "course not found")
	}
	if course.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course owner can start a session")
	}

	radius := req.RadiusM
	if radius <= 0 {
		radius = s.config.DefaultRadiusM
	}
	session := &models.Session{
		CourseID:  course.ID,
		FacultyID: facultyID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		RadiusM:   radius,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, unavailable(err)
	}

	result, err := s.issue(ctx, session, validityFromSeconds(req.ValiditySeconds, s.config.DefaultValidity))
	if err != nil {
		return nil, err
	}
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("course_id", course.ID),
		zap.Float64("radius_m", radius))
	return result, nil
}

// RefreshToken reissues the QR token for an active session the caller
// owns, invalidating the previously persisted credential.
func (s *SessionService) RefreshToken(ctx context.Context, facultyID, sessionID string) (*SessionTokenResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can refresh its QR code")
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is already stopped")
	}
	return s.issue(ctx, session, s.config.DefaultValidity)
}

// Stop transitions the session to its terminal state and discards the
// persisted token so the stored credential cannot be resurrected.
func (s *SessionService) Stop(ctx context.Context, facultyID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can stop it")
	}

	endedAt := time.Now().UTC()
	stopped, err := s.sessions.Stop(ctx, sessionID, endedAt)
	if err != nil {
		return nil, unavailable(err)
	}
	if !stopped {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is already stopped")
	}
	if err := s.sessions.DeleteToken(ctx, sessionID); err != nil {
		return nil, unavailable(err)
	}

	session.Active = false
	session.EndedAt = &endedAt
	s.logger.Info("session stopped", zap.String("session_id", sessionID))
	return session, nil
}

// Get returns a session visible to its owning faculty member.
func (s *SessionService) Get(ctx context.Context, facultyID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another faculty member")
	}
	return session, nil
}

func (s *SessionService) issue(ctx context.Context, session *models.Session, validity time.Duration) (*SessionTokenResult, error) {
	fence := session.Fence()
	payload := s.signer.Issue(session.ID, session.CourseID, session.FacultyID, &fence, validity)

	if err := s.sessions.UpsertToken(ctx, &models.SessionToken{
		SessionID: session.ID,
		CourseID:  session.CourseID,
		FacultyID: session.FacultyID,
		IssuedAt:  payload.IssuedAtTime(),
		ExpiresAt: payload.ExpiresAtTime(),
		Lat:       fence.Lat,
		Lon:       fence.Lon,
		RadiusM:   fence.RadiusM,
		Signature: payload.Signature,
	}); err != nil {
		return nil, unavailable(err)
	}

	encoded, err := qr.Encode(payload)
	if err != nil {
		return nil, err
	}
	img, err := qr.PNG(payload, s.config.QRImageSize)
	if err != nil {
		return nil, err
	}

	return &SessionTokenResult{
		Session:   session,
		Payload:   payload,
		Encoded:   encoded,
		ImagePNG:  base64.StdEncoding.EncodeToString(img),
		ExpiresAt: payload.ExpiresAtTime(),
	}, nil
}

func validityFromSeconds(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
