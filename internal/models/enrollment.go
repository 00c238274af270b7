package models

import "time"

// EnrollmentSource records how the student ended up in the course.
type EnrollmentSource string

const (
	EnrollmentSourceDirect   EnrollmentSource = "direct"
	EnrollmentSourceJoinCode EnrollmentSource = "join_code"
)

// Enrollment links a student to a course. At most one active enrollment
// exists per (course, student) pair, enforced by a partial unique index.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Source    EnrollmentSource `db:"source" json:"source"`
	Active    bool             `db:"active" json:"active"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
}

// EnrollmentDetail enriches Enrollment with student display fields.
type EnrollmentDetail struct {
	Enrollment
	StudentName string  `db:"student_name" json:"student_name"`
	StudentRoll *string `db:"student_roll" json:"student_roll,omitempty"`
}
