package models

import "time"

// QRPayload is the wire artifact embedded in a scannable code. Field names
// are part of the client contract and must not change. Timestamps are Unix
// milliseconds.
type QRPayload struct {
	SessionID string    `json:"sessionId"`
	CourseID  string    `json:"courseId"`
	FacultyID string    `json:"facultyId"`
	Timestamp int64     `json:"timestamp"`
	ExpiresAt int64     `json:"expiresAt"`
	Geofence  *Geofence `json:"geofence,omitempty"`
	Signature string    `json:"signature"`
}

// IssuedAtTime returns the issuance instant.
func (p QRPayload) IssuedAtTime() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// ExpiresAtTime returns the expiry instant.
func (p QRPayload) ExpiresAtTime() time.Time {
	return time.UnixMilli(p.ExpiresAt).UTC()
}

// SessionToken is the persisted copy of the active QR credential for a
// session. It exists for bookkeeping and revocation only; verification is
// stateless against the payload itself.
type SessionToken struct {
	SessionID string    `db:"session_id" json:"session_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Lat       float64   `db:"lat" json:"lat"`
	Lon       float64   `db:"lon" json:"lon"`
	RadiusM   float64   `db:"radius_m" json:"radius_m"`
	Signature string    `db:"signature" json:"-"`
}
