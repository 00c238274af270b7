package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// AttendanceSource records which path produced the mark.
type AttendanceSource string

const (
	AttendanceSourceStudent AttendanceSource = "student"
	AttendanceSourceFaculty AttendanceSource = "faculty"
)

// AttendanceRecord is one status transition for a (session, student) pair.
// Records are appended and patched, never deleted; a partial unique index
// guarantees at most one currently-present row per pair.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Source    AttendanceSource `db:"source" json:"source"`
	Manual    bool             `db:"manual" json:"manual"`
	DistanceM *float64         `db:"distance_m" json:"distance_m,omitempty"`
	MarkedAt  time.Time        `db:"marked_at" json:"marked_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceEntry joins a record with student display fields for rosters.
type AttendanceEntry struct {
	AttendanceRecord
	StudentName string  `db:"student_name" json:"student_name"`
	StudentRoll *string `db:"student_roll" json:"student_roll,omitempty"`
}

// RosterEntry is an enrolled student with their mark for one session.
type RosterEntry struct {
	StudentID   string            `db:"student_id" json:"student_id"`
	StudentName string            `db:"student_name" json:"student_name"`
	StudentRoll *string           `db:"student_roll" json:"student_roll,omitempty"`
	Status      *AttendanceStatus `db:"status" json:"status,omitempty"`
}

// ScanResult is returned to a student after a successful scan.
type ScanResult struct {
	Record    AttendanceRecord `json:"record"`
	DistanceM float64          `json:"distance_m"`
	SessionID string           `json:"session_id"`
	CourseID  string           `json:"course_id"`
}

// ManualAttendanceResult reports the delta applied by a reconciliation.
type ManualAttendanceResult struct {
	Added        int `json:"added"`
	Removed      int `json:"removed"`
	PresentCount int `json:"present_count"`
}
