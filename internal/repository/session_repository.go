package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
)

// SessionRepository handles persistence for class sessions and their
// active QR tokens.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, course_id, faculty_id, lat, lon, radius_m, active, present_count, started_at, ended_at`

// Create inserts a new active session with a zero present count.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.Active = true
	session.PresentCount = 0
	session.StartedAt = time.Now().UTC()
	query := `INSERT INTO sessions (id, course_id, faculty_id, lat, lon, radius_m, active, present_count, started_at)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		session.ID, session.CourseID, session.FacultyID,
		session.Lat, session.Lon, session.RadiusM, session.StartedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Stop transitions an active session to stopped and stamps the end time.
// The bool reports whether the session was still active; stopping an
// already-stopped session affects no rows.
func (r *SessionRepository) Stop(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	query := `UPDATE sessions SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`
	res, err := r.db.ExecContext(ctx, query, id, endedAt)
	if err != nil {
		return false, fmt.Errorf("stop session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stop session: %w", err)
	}
	return affected > 0, nil
}

// TodayByFaculty lists today's sessions for courses owned by the faculty
// member, with running counts for the dashboard.
func (r *SessionRepository) TodayByFaculty(ctx context.Context, facultyID string, dayStart time.Time) ([]models.SessionSummary, error) {
	var rows []models.SessionSummary
	query := `SELECT s.id AS session_id, s.course_id, c.code AS course_code, c.name AS course_name,
	s.active, s.present_count, c.enrolled_count AS enrolled, s.started_at, s.ended_at
FROM sessions s
JOIN courses c ON c.id = s.course_id
WHERE s.faculty_id = $1 AND s.started_at >= $2
ORDER BY s.started_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, facultyID, dayStart); err != nil {
		return nil, fmt.Errorf("list today's sessions: %w", err)
	}
	return rows, nil
}

// UpsertToken stores the active QR token for a session, replacing any prior
// token so at most one persisted credential exists per session.
func (r *SessionRepository) UpsertToken(ctx context.Context, token *models.SessionToken) error {
	query := `INSERT INTO session_tokens (session_id, course_id, faculty_id, issued_at, expires_at, lat, lon, radius_m, signature)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id)
DO UPDATE SET issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at,
	lat = EXCLUDED.lat, lon = EXCLUDED.lon, radius_m = EXCLUDED.radius_m,
	signature = EXCLUDED.signature`
	if _, err := r.db.ExecContext(ctx, query,
		token.SessionID, token.CourseID, token.FacultyID, token.IssuedAt, token.ExpiresAt,
		token.Lat, token.Lon, token.RadiusM, token.Signature); err != nil {
		return fmt.Errorf("upsert session token: %w", err)
	}
	return nil
}

// FindToken returns the persisted token for a session, if any.
func (r *SessionRepository) FindToken(ctx context.Context, sessionID string) (*models.SessionToken, error) {
	var token models.SessionToken
	query := `SELECT session_id, course_id, faculty_id, issued_at, expires_at, lat, lon, radius_m, signature
FROM session_tokens WHERE session_id = $1`
	if err := r.db.GetContext(ctx, &token, query, sessionID); err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteToken discards the persisted token when a session stops.
func (r *SessionRepository) DeleteToken(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}
