package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
)

// ErrJoinCodeTaken signals a join-code uniqueness collision so the caller
// can retry with a freshly generated code.
var ErrJoinCodeTaken = fmt.Errorf("join code already taken")

// CourseRepository handles persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, faculty_id, code, name, department, academic_year, join_code, enrolled_count, active, created_at, updated_at`

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = now
	course.UpdatedAt = now
	query := `INSERT INTO courses (id, faculty_id, code, name, department, academic_year, join_code, enrolled_count, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, TRUE, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		course.ID, course.FacultyID, course.Code, course.Name, course.Department,
		course.AcademicYear, course.JoinCode, course.CreatedAt, course.UpdatedAt); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	course.Active = true
	course.EnrolledCount = 0
	return nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByJoinCode returns the active course carrying the given join code,
// matched case-insensitively.
func (r *CourseRepository) FindByJoinCode(ctx context.Context, code string) (*models.Course, error) {
	var course models.Course
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE UPPER(join_code) = UPPER($1) AND active`, courseColumns)
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// SetJoinCode assigns a join code to a course that does not have one yet.
// The unique index on UPPER(join_code) makes collisions surface as
// ErrJoinCodeTaken; an already-assigned code is immutable and reported as
// sql.ErrNoRows.
func (r *CourseRepository) SetJoinCode(ctx context.Context, courseID, code string) error {
	query := `UPDATE courses SET join_code = $2, updated_at = $3
WHERE id = $1 AND join_code IS NULL`
	res, err := r.db.ExecContext(ctx, query, courseID, code, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrJoinCodeTaken
		}
		return fmt.Errorf("set join code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set join code: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByFaculty returns all active courses owned by the faculty member.
func (r *CourseRepository) ListByFaculty(ctx context.Context, facultyID string) ([]models.Course, error) {
	var courses []models.Course
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE faculty_id = $1 AND active ORDER BY created_at DESC`, courseColumns)
	if err := r.db.SelectContext(ctx, &courses, query, facultyID); err != nil {
		return nil, fmt.Errorf("list courses by faculty: %w", err)
	}
	return courses, nil
}

// ListEnrolled returns the active courses a student is enrolled in, with
// the owning faculty's name attached.
func (r *CourseRepository) ListEnrolled(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	var courses []models.CourseDetail
	query := `SELECT c.id, c.faculty_id, c.code, c.name, c.department, c.academic_year, c.join_code,
	c.enrolled_count, c.active, c.created_at, c.updated_at, u.full_name AS faculty_name
FROM courses c
JOIN enrollments e ON e.course_id = c.id AND e.active
JOIN users u ON u.id = c.faculty_id
WHERE e.student_id = $1 AND c.active
ORDER BY c.code`
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// AdjustEnrolledCount applies an atomic delta to the enrolled counter.
func (r *CourseRepository) AdjustEnrolledCount(ctx context.Context, courseID string, delta int) error {
	query := `UPDATE courses SET enrolled_count = enrolled_count + $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust enrolled count: %w", err)
	}
	return nil
}
