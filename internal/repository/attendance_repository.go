package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
)

// AttendanceRepository handles persistence for attendance records. All
// writes that touch the session present-count run inside a transaction so
// a rejected scan never leaves a partial mutation behind.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// InsertPresentScan appends a present record for the scan path and bumps
// the session present-count, as one atomic unit. The partial unique index
// on (session_id, student_id) WHERE status = 'present' serializes
// concurrent scans: the loser of the race sees inserted == false and the
// count is bumped exactly once.
func (r *AttendanceRepository) InsertPresentScan(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin scan insert: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Status = models.AttendanceStatusPresent
	record.MarkedAt = now
	record.UpdatedAt = now

	insert := `INSERT INTO attendance_records (id, session_id, student_id, status, source, manual, distance_m, marked_at, updated_at)
VALUES ($1, $2, $3, 'present', $4, $5, $6, $7, $8)
ON CONFLICT (session_id, student_id) WHERE status = 'present' DO NOTHING
RETURNING id`
	var insertedID string
	err = tx.GetContext(ctx, &insertedID, insert,
		record.ID, record.SessionID, record.StudentID, record.Source,
		record.Manual, record.DistanceM, record.MarkedAt, record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("insert present record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET present_count = present_count + 1 WHERE id = $1`,
		record.SessionID); err != nil {
		return false, fmt.Errorf("increment present count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit scan insert: %w", err)
	}
	committed = true
	return true, nil
}

// IsPresent reports whether the student already holds a present record for
// the session.
func (r *AttendanceRepository) IsPresent(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM attendance_records
	WHERE session_id = $1 AND student_id = $2 AND status = 'present')`
	if err := r.db.GetContext(ctx, &exists, query, sessionID, studentID); err != nil {
		return false, fmt.Errorf("present record lookup: %w", err)
	}
	return exists, nil
}

// PresentStudentIDs returns the students currently marked present for a
// session.
func (r *AttendanceRepository) PresentStudentIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	query := `SELECT student_id FROM attendance_records WHERE session_id = $1 AND status = 'present'`
	if err := r.db.SelectContext(ctx, &ids, query, sessionID); err != nil {
		return nil, fmt.Errorf("list present students: %w", err)
	}
	return ids, nil
}

// ApplyManual reconciles the present set for a session in one transaction:
// additions are appended as manual present records, removals are patched to
// absent (history is never deleted), and the present-count is adjusted by
// the net delta. Already-present additions are skipped by the conditional
// insert, so replaying the same set is a no-op.
func (r *AttendanceRepository) ApplyManual(ctx context.Context, sessionID string, additions, removals []string) (*models.ManualAttendanceResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin manual attendance: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	added := 0
	insert := `INSERT INTO attendance_records (id, session_id, student_id, status, source, manual, marked_at, updated_at)
VALUES ($1, $2, $3, 'present', 'faculty', TRUE, $4, $4)
ON CONFLICT (session_id, student_id) WHERE status = 'present' DO NOTHING
RETURNING id`
	for _, studentID := range additions {
		var insertedID string
		err := tx.GetContext(ctx, &insertedID, insert, uuid.NewString(), sessionID, studentID, now)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("insert manual present record: %w", err)
		}
		added++
	}

	removed := 0
	if len(removals) > 0 {
		patch := `UPDATE attendance_records
SET status = 'absent', source = 'faculty', manual = TRUE, updated_at = $3
WHERE session_id = $1 AND student_id = ANY($2) AND status = 'present'`
		res, err := tx.ExecContext(ctx, patch, sessionID, pq.Array(removals), now)
		if err != nil {
			return nil, fmt.Errorf("patch absent records: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("patch absent records: %w", err)
		}
		removed = int(affected)
	}

	var presentCount int
	adjust := `UPDATE sessions SET present_count = present_count + $2 WHERE id = $1 RETURNING present_count`
	if err := tx.GetContext(ctx, &presentCount, adjust, sessionID, added-removed); err != nil {
		return nil, fmt.Errorf("adjust present count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit manual attendance: %w", err)
	}
	committed = true
	return &models.ManualAttendanceResult{Added: added, Removed: removed, PresentCount: presentCount}, nil
}

// ListBySession returns the session's attendance entries joined with
// student display fields, most recent mark first.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceEntry, error) {
	var rows []models.AttendanceEntry
	query := `SELECT a.id, a.session_id, a.student_id, a.status, a.source, a.manual, a.distance_m, a.marked_at, a.updated_at,
	u.full_name AS student_name, u.roll_no AS student_roll
FROM attendance_records a
JOIN users u ON u.id = a.student_id
WHERE a.session_id = $1
ORDER BY a.marked_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// Roster returns every enrolled student for the session's course with their
// current mark, if any, in one join.
func (r *AttendanceRepository) Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error) {
	var rows []models.RosterEntry
	query := `SELECT e.student_id, u.full_name AS student_name, u.roll_no AS student_roll, a.status
FROM sessions s
JOIN enrollments e ON e.course_id = s.course_id AND e.active
JOIN users u ON u.id = e.student_id
LEFT JOIN attendance_records a ON a.session_id = s.id AND a.student_id = e.student_id
	AND a.id = (SELECT id FROM attendance_records
		WHERE session_id = s.id AND student_id = e.student_id
		ORDER BY updated_at DESC LIMIT 1)
WHERE s.id = $1
ORDER BY u.full_name`
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session roster: %w", err)
	}
	return rows, nil
}

// StudentSummary aggregates present/total counts across all of a student's
// records for the dashboard percentage.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, studentID string) (present int, total int, err error) {
	query := `SELECT COUNT(*) FILTER (WHERE status = 'present') AS present, COUNT(*) AS total
FROM attendance_records WHERE student_id = $1`
	row := struct {
		Present int `db:"present"`
		Total   int `db:"total"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, studentID); err != nil {
		return 0, 0, fmt.Errorf("student attendance summary: %w", err)
	}
	return row.Present, row.Total, nil
}

// StudentMarksSince returns a student's marks from the given instant,
// joined with course display fields.
func (r *AttendanceRepository) StudentMarksSince(ctx context.Context, studentID string, since time.Time) ([]models.StudentMark, error) {
	var rows []models.StudentMark
	query := `SELECT a.session_id, c.code AS course_code, c.name AS course_name, a.status, a.marked_at
FROM attendance_records a
JOIN sessions s ON s.id = a.session_id
JOIN courses c ON c.id = s.course_id
WHERE a.student_id = $1 AND a.marked_at >= $2
ORDER BY a.marked_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, studentID, since); err != nil {
		return nil, fmt.Errorf("student marks: %w", err)
	}
	return rows, nil
}
