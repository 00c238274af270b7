package models

import "time"

// SessionSummary is a dashboard line for one of today's sessions.
type SessionSummary struct {
	SessionID    string     `db:"session_id" json:"session_id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	CourseCode   string     `db:"course_code" json:"course_code"`
	CourseName   string     `db:"course_name" json:"course_name"`
	Active       bool       `db:"active" json:"active"`
	PresentCount int        `db:"present_count" json:"present_count"`
	Enrolled     int        `db:"enrolled" json:"enrolled"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	EndedAt      *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// FacultyDashboard aggregates today's sessions for a faculty member.
type FacultyDashboard struct {
	Date     string           `json:"date"`
	Sessions []SessionSummary `json:"sessions"`
}

// StudentMark is one of today's marks on the student dashboard.
type StudentMark struct {
	SessionID  string           `db:"session_id" json:"session_id"`
	CourseCode string           `db:"course_code" json:"course_code"`
	CourseName string           `db:"course_name" json:"course_name"`
	Status     AttendanceStatus `db:"status" json:"status"`
	MarkedAt   time.Time        `db:"marked_at" json:"marked_at"`
}

// StudentDashboard aggregates a student's attendance standing.
type StudentDashboard struct {
	PresentCount      int           `json:"present_count"`
	TotalCount        int           `json:"total_count"`
	AttendancePercent float64       `json:"attendance_percent"`
	TodayMarks        []StudentMark `json:"today_marks"`
}
