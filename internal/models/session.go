package models

import "time"

// Geofence is the circular zone within which a scan is accepted.
type Geofence struct {
	Lat     float64 `db:"lat" json:"lat"`
	Lon     float64 `db:"lon" json:"lon"`
	RadiusM float64 `db:"radius_m" json:"radius"`
}

// Session is a single class meeting instance. It is the unit of
// attendance-taking and outlives its QR token.
type Session struct {
	ID           string     `db:"id" json:"id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	FacultyID    string     `db:"faculty_id" json:"faculty_id"`
	Lat          float64    `db:"lat" json:"lat"`
	Lon          float64    `db:"lon" json:"lon"`
	RadiusM      float64    `db:"radius_m" json:"radius_m"`
	Active       bool       `db:"active" json:"active"`
	PresentCount int        `db:"present_count" json:"present_count"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	EndedAt      *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Fence returns the session geofence as a value object.
func (s *Session) Fence() Geofence {
	return Geofence{Lat: s.Lat, Lon: s.Lon, RadiusM: s.RadiusM}
}

// SessionDetail enriches Session with course display fields.
type SessionDetail struct {
	Session
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}
