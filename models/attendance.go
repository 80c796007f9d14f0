package models

import "time"

// Attendance statuses. A record always carries exactly one of these.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

// Session types. A classroom holds at most one session per type per day.
const (
	SessionMorning   = "morning"
	SessionAfternoon = "afternoon"
)

// Session lifecycle states, derived from the stored flags and record count.
const (
	SessionStateCreated   = "created"
	SessionStateRecording = "recording"
	SessionStateFinalized = "finalized"
)

// AbsentSweepNote is written on records inserted by the absentee sweep.
const AbsentSweepNote = "Auto-marked absent after deadline"

// IsValidStatus reports whether s is a known attendance status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// IsValidSessionType reports whether s is a known session type.
func IsValidSessionType(s string) bool {
	return s == SessionMorning || s == SessionAfternoon
}

// AttendanceSession is one (classroom, date, session type) attendance log.
// The composite unique index enforces the at-most-one-session invariant that
// get-or-create relies on.
type AttendanceSession struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	ClassroomID uint   `json:"classroom_id" gorm:"not null;uniqueIndex:idx_session_key"`
	SessionDate string `json:"session_date" gorm:"type:date;not null;uniqueIndex:idx_session_key;index"` // YYYY-MM-DD
	SessionType string `json:"session_type" gorm:"not null;default:'morning';uniqueIndex:idx_session_key"`

	StartTime time.Time  `json:"start_time" gorm:"not null"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// TotalStudents is snapshotted at creation and refreshed at finalize so
	// roster edits mid-session are tolerated rather than reported.
	TotalStudents int `json:"total_students" gorm:"default:0"`
	PresentCount  int `json:"present_count" gorm:"default:0"`
	AbsentCount   int `json:"absent_count" gorm:"default:0"`
	LateCount     int `json:"late_count" gorm:"default:0"`
	ExcusedCount  int `json:"excused_count" gorm:"default:0"`

	// IsFinalized is monotonic: once true it never reverts.
	IsFinalized bool `json:"is_finalized" gorm:"default:false;index"`

	RecordedByID *uint     `json:"recorded_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	RecordedBy *User              `json:"recorded_by,omitempty" gorm:"foreignKey:RecordedByID"`
	Records    []AttendanceRecord `json:"records,omitempty" gorm:"foreignKey:SessionID"`
}

func (AttendanceSession) TableName() string {
	return "attendance_sessions"
}

// State derives the lifecycle state from the finalized flag and the number of
// records attached so far.
func (s *AttendanceSession) State(recordCount int) string {
	if s.IsFinalized {
		return SessionStateFinalized
	}
	if recordCount > 0 {
		return SessionStateRecording
	}
	return SessionStateCreated
}

// AttendanceRate returns present/total as a percentage, 0 when the roster is
// empty.
func (s *AttendanceSession) AttendanceRate() float64 {
	if s.TotalStudents == 0 {
		return 0.0
	}
	return float64(s.PresentCount) / float64(s.TotalStudents) * 100
}

// AttendanceRecord is one student's attendance within one session. The
// composite unique index enforces at-most-one-record-per-student; concurrent
// writers for the same pair converge via the highest-confidence merge rule in
// the attendance service.
type AttendanceRecord struct {
	ID          uint `json:"id" gorm:"primaryKey"`
	StudentID   uint `json:"student_id" gorm:"not null;uniqueIndex:idx_student_session;index"`
	SessionID   uint `json:"session_id" gorm:"not null;uniqueIndex:idx_student_session"`
	ClassroomID uint `json:"classroom_id" gorm:"not null;index"`

	Status      string     `json:"status" gorm:"not null;default:'present';index"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"` // nil for sweep-created absent records

	CheckInImagePath *string `json:"check_in_image_path,omitempty"`
	FaceConfidence   float64 `json:"face_confidence" gorm:"default:0"`
	IsFaceRecognized bool    `json:"is_face_recognized" gorm:"default:false"`

	Notes        *string   `json:"notes,omitempty"`
	RecordedByID *uint     `json:"recorded_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Student    *Student           `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Session    *AttendanceSession `json:"-" gorm:"foreignKey:SessionID"`
	RecordedBy *User              `json:"recorded_by,omitempty" gorm:"foreignKey:RecordedByID"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}
