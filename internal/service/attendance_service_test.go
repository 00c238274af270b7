package service

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahull-prog/iiitnrattendence/internal/geo"
	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/qr"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type stubAttendanceRepo struct {
	present      map[string]map[string]bool
	presentCount map[string]int
	entries      []models.AttendanceEntry
	roster       []models.RosterEntry
}

func newStubAttendanceRepo() *stubAttendanceRepo {
	return &stubAttendanceRepo{
		present:      make(map[string]map[string]bool),
		presentCount: make(map[string]int),
	}
}

func (s *stubAttendanceRepo) InsertPresentScan(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if s.present[record.SessionID] == nil {
		s.present[record.SessionID] = make(map[string]bool)
	}
	if s.present[record.SessionID][record.StudentID] {
		return false, nil
	}
	s.present[record.SessionID][record.StudentID] = true
	s.presentCount[record.SessionID]++
	record.ID = "rec-" + record.StudentID
	record.Status = models.AttendanceStatusPresent
	return true, nil
}

func (s *stubAttendanceRepo) IsPresent(ctx context.Context, sessionID, studentID string) (bool, error) {
	return s.present[sessionID][studentID], nil
}

func (s *stubAttendanceRepo) PresentStudentIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	for id := range s.present[sessionID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubAttendanceRepo) ApplyManual(ctx context.Context, sessionID string, additions, removals []string) (*models.ManualAttendanceResult, error) {
	if s.present[sessionID] == nil {
		s.present[sessionID] = make(map[string]bool)
	}
	added, removed := 0, 0
	for _, id := range additions {
		if !s.present[sessionID][id] {
			s.present[sessionID][id] = true
			added++
		}
	}
	for _, id := range removals {
		if s.present[sessionID][id] {
			delete(s.present[sessionID], id)
			removed++
		}
	}
	s.presentCount[sessionID] += added - removed
	return &models.ManualAttendanceResult{
		Added:        added,
		Removed:      removed,
		PresentCount: s.presentCount[sessionID],
	}, nil
}

func (s *stubAttendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	return s.entries, nil
}

func (s *stubAttendanceRepo) Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error) {
	return s.roster, nil
}

type stubSessionReader struct {
	sessions map[string]*models.Session
	tokens   map[string]*models.SessionToken
}

func (s *stubSessionReader) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		dup := *sess
		return &dup, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubSessionReader) FindToken(ctx context.Context, sessionID string) (*models.SessionToken, error) {
	if token, ok := s.tokens[sessionID]; ok {
		return token, nil
	}
	return nil, sql.ErrNoRows
}

type stubEnrollmentReader struct {
	enrolled map[string]bool
}

func (s *stubEnrollmentReader) ExistsActive(ctx context.Context, courseID, studentID string) (bool, error) {
	return s.enrolled[courseID+"/"+studentID], nil
}

type stubOutcomeRecorder struct {
	outcomes []string
}

func (s *stubOutcomeRecorder) RecordScanOutcome(outcome string) {
	s.outcomes = append(s.outcomes, outcome)
}

type scanFixture struct {
	svc      *AttendanceService
	records  *stubAttendanceRepo
	sessions *stubSessionReader
	enrolled *stubEnrollmentReader
	clock    *testClock
	signer   *qr.Signer
	outcomes *stubOutcomeRecorder
	payload  models.QRPayload
	encoded  string
}

// newScanFixture builds a service around one active session at
// (12.0000, 77.0000) with a 50 m geofence, and one enrolled student.
func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	signer := qr.NewSigner("test-secret", clock.Now)

	session := &models.Session{
		ID:        "sess-1",
		CourseID:  "course-1",
		FacultyID: "fac-1",
		Lat:       12.0,
		Lon:       77.0,
		RadiusM:   50,
		Active:    true,
	}
	fence := session.Fence()
	payload := signer.Issue(session.ID, session.CourseID, session.FacultyID, &fence, 5*time.Minute)
	encoded, err := qr.Encode(payload)
	require.NoError(t, err)

	sessions := &stubSessionReader{
		sessions: map[string]*models.Session{session.ID: session},
		tokens: map[string]*models.SessionToken{
			session.ID: {SessionID: session.ID, Signature: payload.Signature},
		},
	}
	enrolled := &stubEnrollmentReader{enrolled: map[string]bool{"course-1/stu-1": true}}
	records := newStubAttendanceRepo()
	outcomes := &stubOutcomeRecorder{}
	svc := NewAttendanceService(records, sessions, enrolled, signer, outcomes, nil, nil)

	return &scanFixture{
		svc:      svc,
		records:  records,
		sessions: sessions,
		enrolled: enrolled,
		clock:    clock,
		signer:   signer,
		outcomes: outcomes,
		payload:  payload,
		encoded:  encoded,
	}
}

func TestRecordScanAccepted(t *testing.T) {
	f := newScanFixture(t)

	// Roughly 33 m north of the session location, inside the 50 m fence.
	result, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded,
		Lat:     12.00030,
		Lon:     77.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 33.4, result.DistanceM, 1.0)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, "course-1", result.CourseID)
	assert.Equal(t, models.AttendanceSourceStudent, result.Record.Source)
	assert.False(t, result.Record.Manual)
	require.NotNil(t, result.Record.DistanceM)
	assert.Equal(t, 1, f.records.presentCount["sess-1"])
	assert.Equal(t, []string{"accepted"}, f.outcomes.outcomes)
}

func TestRecordScanDuplicate(t *testing.T) {
	f := newScanFixture(t)
	req := ScanRequest{Payload: f.encoded, Lat: 12.00030, Lon: 77.0}

	_, err := f.svc.RecordScan(context.Background(), "stu-1", req)
	require.NoError(t, err)

	_, err = f.svc.RecordScan(context.Background(), "stu-1", req)
	require.ErrorIs(t, err, appErrors.ErrAlreadyMarked)
	assert.Equal(t, 1, f.records.presentCount["sess-1"], "count bumped exactly once")
}

func TestRecordScanOutOfRange(t *testing.T) {
	f := newScanFixture(t)

	// About 111 m away, well past the 50 m fence.
	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded,
		Lat:     12.0010,
		Lon:     77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrOutOfRange)
	assert.Contains(t, err.Error(), "allowed radius is 50 m")
	assert.Empty(t, f.records.present["sess-1"], "rejected scan persists nothing")
}

func TestRecordScanDuplicateFromOutOfRange(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.NoError(t, err)

	// Re-scanning from far away reports the existing mark, not the fence.
	_, err = f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.0010, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrAlreadyMarked)
	assert.Equal(t, 1, f.records.presentCount["sess-1"])
}

func TestRecordScanGeofenceBoundary(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	signer := qr.NewSigner("test-secret", clock.Now)

	// A point due north whose computed distance becomes the exact radius,
	// so the fence line itself is covered without rounding slack.
	boundaryLat := 12.0 + 50.0/geo.EarthRadiusM*180/math.Pi
	boundary := geo.DistanceMeters(12.0, 77.0, boundaryLat, 77.0)

	session := &models.Session{
		ID:        "sess-3",
		CourseID:  "course-1",
		FacultyID: "fac-1",
		Lat:       12.0,
		Lon:       77.0,
		RadiusM:   boundary,
		Active:    true,
	}
	fence := session.Fence()
	payload := signer.Issue(session.ID, session.CourseID, session.FacultyID, &fence, 5*time.Minute)
	encoded, err := qr.Encode(payload)
	require.NoError(t, err)

	sessions := &stubSessionReader{
		sessions: map[string]*models.Session{session.ID: session},
		tokens: map[string]*models.SessionToken{
			session.ID: {SessionID: session.ID, Signature: payload.Signature},
		},
	}
	enrolled := &stubEnrollmentReader{enrolled: map[string]bool{
		"course-1/stu-1": true,
		"course-1/stu-2": true,
	}}
	svc := NewAttendanceService(newStubAttendanceRepo(), sessions, enrolled, signer, nil, nil, nil)

	// Standing exactly on the fence line is inside.
	result, err := svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: encoded, Lat: boundaryLat, Lon: 77.0,
	})
	require.NoError(t, err)
	assert.Equal(t, boundary, result.DistanceM)

	// One meter past it is not.
	pastLat := 12.0 + (boundary+1.0)/geo.EarthRadiusM*180/math.Pi
	_, err = svc.RecordScan(context.Background(), "stu-2", ScanRequest{
		Payload: encoded, Lat: pastLat, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrOutOfRange)
	assert.Contains(t, err.Error(), "allowed radius is 50 m")
}

func TestRecordScanExpired(t *testing.T) {
	f := newScanFixture(t)
	f.clock.now = f.clock.now.Add(6 * time.Minute)

	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestRecordScanTamperedSignature(t *testing.T) {
	f := newScanFixture(t)

	tampered := f.payload
	tampered.Signature = "deadbeef"
	encoded, err := qr.Encode(tampered)
	require.NoError(t, err)

	_, err = f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidSignature)
}

func TestRecordScanMalformedPayload(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: "not json", Lat: 12.0, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidFormat)
}

func TestRecordScanNotEnrolled(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.svc.RecordScan(context.Background(), "stu-2", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRecordScanStoppedSession(t *testing.T) {
	f := newScanFixture(t)
	f.sessions.sessions["sess-1"].Active = false

	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestRecordScanSupersededToken(t *testing.T) {
	f := newScanFixture(t)

	// A refresh replaces the persisted signature; the old code must die
	// even though its own expiry window is still open.
	fence := models.Geofence{Lat: 12.0, Lon: 77.0, RadiusM: 50}
	fresh := f.signer.Issue("sess-1", "course-1", "fac-1", &fence, 5*time.Minute)
	f.sessions.tokens["sess-1"].Signature = fresh.Signature + "x"

	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.ErrorIs(t, err, appErrors.ErrTokenExpired)
}

func TestRecordScanWithoutGeofenceSkipsDistanceCheck(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	signer := qr.NewSigner("test-secret", clock.Now)

	session := &models.Session{ID: "sess-2", CourseID: "course-1", FacultyID: "fac-1", Active: true}
	payload := signer.Issue(session.ID, session.CourseID, session.FacultyID, nil, 5*time.Minute)
	encoded, err := qr.Encode(payload)
	require.NoError(t, err)

	sessions := &stubSessionReader{
		sessions: map[string]*models.Session{session.ID: session},
		tokens: map[string]*models.SessionToken{
			session.ID: {SessionID: session.ID, Signature: payload.Signature},
		},
	}
	enrolled := &stubEnrollmentReader{enrolled: map[string]bool{"course-1/stu-1": true}}
	svc := NewAttendanceService(newStubAttendanceRepo(), sessions, enrolled, signer, nil, nil, nil)

	result, err := svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: encoded, Lat: 40.0, Lon: -74.0,
	})
	require.NoError(t, err)
	assert.Zero(t, result.DistanceM)
	assert.Nil(t, result.Record.DistanceM)
}

func TestApplyManualReconciles(t *testing.T) {
	f := newScanFixture(t)
	f.enrolled.enrolled["course-1/stu-2"] = true
	f.enrolled.enrolled["course-1/stu-3"] = true

	// stu-1 scanned in; faculty declares {stu-2, stu-3} as the present set.
	_, err := f.svc.RecordScan(context.Background(), "stu-1", ScanRequest{
		Payload: f.encoded, Lat: 12.00030, Lon: 77.0,
	})
	require.NoError(t, err)

	result, err := f.svc.ApplyManual(context.Background(), "fac-1", "sess-1", ManualAttendanceRequest{
		PresentStudentIDs: []string{"stu-2", "stu-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 2, result.PresentCount)

	// Replaying the same set changes nothing.
	result, err = f.svc.ApplyManual(context.Background(), "fac-1", "sess-1", ManualAttendanceRequest{
		PresentStudentIDs: []string{"stu-2", "stu-3"},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Added)
	assert.Zero(t, result.Removed)
	assert.Equal(t, 2, result.PresentCount)
}

func TestApplyManualNotOwner(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.svc.ApplyManual(context.Background(), "fac-2", "sess-1", ManualAttendanceRequest{
		PresentStudentIDs: []string{"stu-1"},
	})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestApplyManualRejectsUnenrolledStudent(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.svc.ApplyManual(context.Background(), "fac-1", "sess-1", ManualAttendanceRequest{
		PresentStudentIDs: []string{"stu-9"},
	})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "stu-9")
}

func TestSessionAttendanceAccess(t *testing.T) {
	f := newScanFixture(t)
	f.records.entries = []models.AttendanceEntry{{StudentName: "A Student"}}

	rows, err := f.svc.SessionAttendance(context.Background(), "fac-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = f.svc.SessionAttendance(context.Background(), "stu-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = f.svc.SessionAttendance(context.Background(), "stranger", "sess-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRosterOwnerOnly(t *testing.T) {
	f := newScanFixture(t)
	f.records.roster = []models.RosterEntry{{StudentID: "stu-1"}}

	rows, err := f.svc.Roster(context.Background(), "fac-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = f.svc.Roster(context.Background(), "stu-1", "sess-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}
