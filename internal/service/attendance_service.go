package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/geo"
	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/qr"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type attendanceRepository interface {
	InsertPresentScan(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	IsPresent(ctx context.Context, sessionID, studentID string) (bool, error)
	PresentStudentIDs(ctx context.Context, sessionID string) ([]string, error)
	ApplyManual(ctx context.Context, sessionID string, additions, removals []string) (*models.ManualAttendanceResult, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error)
	Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error)
}

type attendanceSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindToken(ctx context.Context, sessionID string) (*models.SessionToken, error)
}

type attendanceEnrollmentReader interface {
	ExistsActive(ctx context.Context, courseID, studentID string) (bool, error)
}

// ScanOutcomeRecorder counts scan verdicts for observability. Implementations
// must be safe for concurrent use.
type ScanOutcomeRecorder interface {
	RecordScanOutcome(outcome string)
}

// AttendanceService owns the scan verification pipeline and the faculty
// manual-override path. Every rejection maps to a distinct error kind so
// clients can render a precise reason.
type AttendanceService struct {
	records     attendanceRepository
	sessions    attendanceSessionReader
	enrollments attendanceEnrollmentReader
	signer      *qr.Signer
	outcomes    ScanOutcomeRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service. outcomes may be nil.
func NewAttendanceService(records attendanceRepository, sessions attendanceSessionReader, enrollments attendanceEnrollmentReader, signer *qr.Signer, outcomes ScanOutcomeRecorder, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		records:     records,
		sessions:    sessions,
		enrollments: enrollments,
		signer:      signer,
		outcomes:    outcomes,
		validator:   validate,
		logger:      logger,
	}
}

// ScanRequest is a student's scan submission: the raw payload read from the
// code plus the device location.
type ScanRequest struct {
	Payload string  `json:"payload" validate:"required"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// RecordScan runs the full verification pipeline for one scan: decode,
// signature, expiry, session state, token currency, enrollment, duplicate,
// geofence, then the conditional insert. The pipeline fails closed at the
// first rejection; nothing is persisted unless every check passes.
func (s *AttendanceService) RecordScan(ctx context.Context, studentID string, req ScanRequest) (*models.ScanResult, error) {
	result, err := s.recordScan(ctx, studentID, req)
	s.countOutcome(err)
	return result, err
}

func (s *AttendanceService) recordScan(ctx context.Context, studentID string, req ScanRequest) (*models.ScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}

	payload, err := qr.Decode(req.Payload)
	if err != nil {
		return nil, err
	}
	if err := s.signer.Verify(payload); err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByID(ctx, payload.SessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "session has ended")
	}

	// A refreshed code invalidates its predecessor even inside the expiry
	// window: the scanned signature must match the persisted one.
	token, err := s.sessions.FindToken(ctx, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTokenExpired, "this QR code is no longer valid")
		}
		return nil, unavailable(err)
	}
	if token.Signature != payload.Signature {
		return nil, appErrors.Clone(appErrors.ErrTokenExpired, "a newer QR code has been issued for this session")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, session.CourseID, studentID)
	if err != nil {
		return nil, unavailable(err)
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not enrolled in this course")
	}

	// A student who is already marked gets told so before the geofence is
	// measured; re-scanning from the bus stop is not an out-of-range error.
	// The conditional insert below remains the authoritative gate under
	// concurrent scans.
	already, err := s.records.IsPresent(ctx, session.ID, studentID)
	if err != nil {
		return nil, unavailable(err)
	}
	if already {
		return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "attendance already marked for this session")
	}

	var distance float64
	if payload.Geofence != nil {
		if !geo.ValidCoordinate(req.Lat, req.Lon) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "latitude/longitude out of range")
		}
		distance = geo.DistanceMeters(payload.Geofence.Lat, payload.Geofence.Lon, req.Lat, req.Lon)
		if distance > payload.Geofence.RadiusM {
			return nil, appErrors.Clone(appErrors.ErrOutOfRange,
				fmt.Sprintf("you are %.1f m from the class location; allowed radius is %.0f m",
					distance, payload.Geofence.RadiusM))
		}
	}

	record := &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: studentID,
		Source:    models.AttendanceSourceStudent,
		Manual:    false,
	}
	if payload.Geofence != nil {
		d := distance
		record.DistanceM = &d
	}
	inserted, err := s.records.InsertPresentScan(ctx, record)
	if err != nil {
		return nil, unavailable(err)
	}
	if !inserted {
		return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "attendance already marked for this session")
	}

	s.logger.Info("scan accepted",
		zap.String("session_id", session.ID),
		zap.String("student_id", studentID),
		zap.Float64("distance_m", distance))
	return &models.ScanResult{
		Record:    *record,
		DistanceM: distance,
		SessionID: session.ID,
		CourseID:  session.CourseID,
	}, nil
}

// ManualAttendanceRequest is the faculty-declared present set for a session.
type ManualAttendanceRequest struct {
	PresentStudentIDs []string `json:"present_student_ids"`
}

// ApplyManual reconciles the session's present set against the declared one:
// missing students are appended as manual marks, extra ones are patched to
// absent. Replaying the same set is a no-op.
func (s *AttendanceService) ApplyManual(ctx context.Context, facultyID, sessionID string, req ManualAttendanceRequest) (*models.ManualAttendanceResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can override attendance")
	}

	desired := make(map[string]struct{}, len(req.PresentStudentIDs))
	for _, id := range req.PresentStudentIDs {
		if id == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student ids must be non-empty")
		}
		desired[id] = struct{}{}
	}
	for id := range desired {
		enrolled, err := s.enrollments.ExistsActive(ctx, session.CourseID, id)
		if err != nil {
			return nil, unavailable(err)
		}
		if !enrolled {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("student %s is not enrolled in this course", id))
		}
	}

	current, err := s.records.PresentStudentIDs(ctx, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	var additions, removals []string
	for id := range desired {
		if _, ok := currentSet[id]; !ok {
			additions = append(additions, id)
		}
	}
	for _, id := range current {
		if _, ok := desired[id]; !ok {
			removals = append(removals, id)
		}
	}

	result, err := s.records.ApplyManual(ctx, sessionID, additions, removals)
	if err != nil {
		return nil, unavailable(err)
	}
	s.logger.Info("manual attendance applied",
		zap.String("session_id", sessionID),
		zap.Int("added", result.Added),
		zap.Int("removed", result.Removed))
	return result, nil
}

// SessionAttendance returns the session's marked entries. The owning faculty
// member sees it always; an enrolled student may follow the live view too.
func (s *AttendanceService) SessionAttendance(ctx context.Context, principalID, sessionID string) ([]models.AttendanceEntry, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != principalID {
		enrolled, err := s.enrollments.ExistsActive(ctx, session.CourseID, principalID)
		if err != nil {
			return nil, unavailable(err)
		}
		if !enrolled {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this session")
		}
	}
	rows, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}

// Roster returns every enrolled student with their current mark for the
// session; faculty-owner only.
func (s *AttendanceService) Roster(ctx context.Context, facultyID, sessionID string) ([]models.RosterEntry, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can view the roster")
	}
	rows, err := s.records.Roster(ctx, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}
	return rows, nil
}

func (s *AttendanceService) countOutcome(err error) {
	if s.outcomes == nil {
		return
	}
	if err == nil {
		s.outcomes.RecordScanOutcome("accepted")
		return
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		s.outcomes.RecordScanOutcome(appErr.Code)
		return
	}
	s.outcomes.RecordScanOutcome(appErrors.ErrInternal.Code)
}
