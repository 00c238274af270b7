package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
)

// EnrollmentRepository handles persistence for course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateIfAbsent inserts an active enrollment unless one already exists for
// the (course, student) pair. The partial unique index serializes concurrent
// attempts; the bool reports whether a row was actually inserted.
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	enrollment.Active = true
	enrollment.JoinedAt = time.Now().UTC()
	query := `INSERT INTO enrollments (id, course_id, student_id, source, active, joined_at)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (course_id, student_id) WHERE active DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.GetContext(ctx, &insertedID, query,
		enrollment.ID, enrollment.CourseID, enrollment.StudentID, enrollment.Source, enrollment.JoinedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	return true, nil
}

// ExistsActive reports whether the student holds an active enrollment in
// the course.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, courseID, studentID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 AND active)`
	if err := r.db.GetContext(ctx, &exists, query, courseID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// Deactivate marks the student's active enrollment inactive. The bool
// reports whether an active enrollment was found.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, courseID, studentID string) (bool, error) {
	query := `UPDATE enrollments SET active = FALSE WHERE course_id = $1 AND student_id = $2 AND active`
	res, err := r.db.ExecContext(ctx, query, courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate enrollment: %w", err)
	}
	return affected > 0, nil
}

// ListByCourse returns active enrollments with student display fields, in a
// single join rather than per-student point lookups.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	var rows []models.EnrollmentDetail
	query := `SELECT e.id, e.course_id, e.student_id, e.source, e.active, e.joined_at,
	u.full_name AS student_name, u.roll_no AS student_roll
FROM enrollments e
JOIN users u ON u.id = e.student_id
WHERE e.course_id = $1 AND e.active
ORDER BY u.full_name`
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return rows, nil
}
