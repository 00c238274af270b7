package models

import "time"

// Join codes are drawn from an alphabet without lookalike characters
// (no 0/O, 1/I) so students can type them from a blackboard.
const (
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	JoinCodeLength   = 6
)

// Course represents a taught course owned by one faculty member.
type Course struct {
	ID            string    `db:"id" json:"id"`
	FacultyID     string    `db:"faculty_id" json:"faculty_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Department    string    `db:"department" json:"department"`
	AcademicYear  string    `db:"academic_year" json:"academic_year"`
	JoinCode      *string   `db:"join_code" json:"join_code,omitempty"`
	EnrolledCount int       `db:"enrolled_count" json:"enrolled_count"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with the owning faculty's display name.
type CourseDetail struct {
	Course
	FacultyName string `db:"faculty_name" json:"faculty_name"`
}
