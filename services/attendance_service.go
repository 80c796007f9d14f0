package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/repository"
)

// SessionDateFormat is the canonical on-disk form of a session date.
const SessionDateFormat = "2006-01-02"

// RecordOptions carries the optional fields of an attendance record write.
type RecordOptions struct {
	Confidence       float64
	IsFaceRecognized bool
	CheckInImagePath *string
	RecordedByID     *uint
	Notes            *string
}

// SweepResult summarizes one absentee sweep run.
type SweepResult struct {
	SessionsProcessed int `json:"sessions_processed"`
	StudentsMarked    int `json:"students_marked"`
	Errors            int `json:"errors"`
}

// AttendanceService owns the session lifecycle: idempotent creation, record
// merging, finalization and the absentee sweep.
type AttendanceService struct {
	attendanceRepo repository.AttendanceRepositoryInterface
	studentRepo    repository.StudentRepositoryInterface
	classroomRepo  repository.ClassroomRepositoryInterface

	// minRecordConfidence is the stricter of the two confidence thresholds:
	// a labeled match below it is never auto-written into attendance.
	minRecordConfidence float64
	absentDeadline      time.Duration
}

// NewAttendanceService creates a new attendance service.
func NewAttendanceService(
	attendanceRepo repository.AttendanceRepositoryInterface,
	studentRepo repository.StudentRepositoryInterface,
	classroomRepo repository.ClassroomRepositoryInterface,
	minRecordConfidence float64,
	absentDeadline time.Duration,
) *AttendanceService {
	return &AttendanceService{
		attendanceRepo:      attendanceRepo,
		studentRepo:         studentRepo,
		classroomRepo:       classroomRepo,
		minRecordConfidence: minRecordConfidence,
		absentDeadline:      absentDeadline,
	}
}

// MinRecordConfidence exposes the write threshold for callers that filter
// matches before recording.
func (s *AttendanceService) MinRecordConfidence() float64 {
	return s.minRecordConfidence
}

// CreateOrGetSession returns the session for (classroom, date, sessionType),
// creating it when absent. Creation snapshots the current active roster size.
// Idempotent: an existing session is returned unchanged, whatever its state.
func (s *AttendanceService) CreateOrGetSession(classroomID uint, date time.Time, sessionType string, recordedByID *uint) (*models.AttendanceSession, error) {
	if !models.IsValidSessionType(sessionType) {
		return nil, ErrInvalidSessionType
	}
	if _, err := s.classroomRepo.GetByID(classroomID); err != nil {
		return nil, fmt.Errorf("classroom %d: %w", classroomID, err)
	}

	sessionDate := date.Format(SessionDateFormat)

	session, err := s.attendanceRepo.GetSessionByKey(classroomID, sessionDate, sessionType)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	totalStudents, err := s.studentRepo.CountActiveByClassroom(classroomID)
	if err != nil {
		return nil, err
	}

	session = &models.AttendanceSession{
		ClassroomID:   classroomID,
		SessionDate:   sessionDate,
		SessionType:   sessionType,
		StartTime:     time.Now(),
		TotalStudents: int(totalStudents),
		RecordedByID:  recordedByID,
	}
	if err := s.attendanceRepo.CreateSession(session); err != nil {
		// another writer created the session first; the unique key makes this
		// safe to resolve by re-reading
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.attendanceRepo.GetSessionByKey(classroomID, sessionDate, sessionType)
		}
		return nil, err
	}

	log.Printf("attendance: created session for classroom %d on %s (%s), %d students",
		classroomID, sessionDate, sessionType, totalStudents)
	return session, nil
}

// RecordAttendance inserts the student's record for the session, or merges
// with the existing one: a strictly higher confidence overwrites confidence
// and status in place (last-higher-confidence-wins), anything else leaves the
// stored record untouched. Racing writers converge to the highest-confidence
// value because a lost insert race falls back to the same merge.
func (s *AttendanceService) RecordAttendance(studentID, sessionID uint, status string, opts RecordOptions) (*models.AttendanceRecord, error) {
	if !models.IsValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	if opts.Confidence < 0 || opts.Confidence > 1 {
		return nil, ErrInvalidConfidence
	}

	session, err := s.attendanceRepo.GetSessionByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.IsFinalized {
		return nil, ErrSessionFinalized
	}

	student, err := s.studentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.attendanceRepo.GetRecord(studentID, sessionID)
		if err == nil {
			if opts.Confidence > existing.FaceConfidence {
				existing.FaceConfidence = opts.Confidence
				existing.Status = status
				if err := s.attendanceRepo.UpdateRecord(existing); err != nil {
					return nil, err
				}
				log.Printf("attendance: upgraded record for student %s in session %d (confidence %.2f)",
					student.StudentCode, sessionID, opts.Confidence)
			}
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		now := time.Now()
		record := &models.AttendanceRecord{
			StudentID:        studentID,
			SessionID:        sessionID,
			ClassroomID:      session.ClassroomID,
			Status:           status,
			CheckInTime:      &now,
			CheckInImagePath: opts.CheckInImagePath,
			FaceConfidence:   opts.Confidence,
			IsFaceRecognized: opts.IsFaceRecognized,
			Notes:            opts.Notes,
			RecordedByID:     opts.RecordedByID,
		}
		err = s.attendanceRepo.CreateRecord(record)
		if err == nil {
			log.Printf("attendance: recorded %s for student %s in session %d",
				status, student.StudentCode, sessionID)
			return record, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// lost the insert race; loop once more and merge with the winner's row
	}

	return nil, fmt.Errorf("failed to converge attendance record for student %d in session %d", studentID, sessionID)
}

// RecordFaceCheckIn resolves a recognized gallery label (student code) and
// writes a present record, gated by the stricter write threshold. The label
// threshold already ran in the matcher; this one decides whether the verdict
// is trustworthy enough to become attendance.
func (s *AttendanceService) RecordFaceCheckIn(studentCode string, confidence float64, sessionID uint, imagePath *string) (*models.AttendanceRecord, error) {
	if confidence < s.minRecordConfidence {
		return nil, ErrLowConfidence
	}

	student, err := s.studentRepo.GetByCode(studentCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	if !student.IsActive {
		return nil, ErrStudentInactive
	}

	return s.RecordAttendance(student.ID, sessionID, models.StatusPresent, RecordOptions{
		Confidence:       confidence,
		IsFaceRecognized: true,
		CheckInImagePath: imagePath,
	})
}

// FinalizeSession freezes a session's aggregates: the roster size is re-read
// from the current active roster (tolerating mid-session roster edits) and the
// per-status counts are recomputed from the actual record set. Safe to call
// again on an already finalized session; the recompute is idempotent.
func (s *AttendanceService) FinalizeSession(sessionID uint) (*models.AttendanceSession, error) {
	session, err := s.attendanceRepo.GetSessionByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	totalStudents, err := s.studentRepo.CountActiveByClassroom(session.ClassroomID)
	if err != nil {
		return nil, err
	}
	session.TotalStudents = int(totalStudents)

	records, err := s.attendanceRepo.ListRecordsBySession(sessionID)
	if err != nil {
		return nil, err
	}

	session.PresentCount = 0
	session.AbsentCount = 0
	session.LateCount = 0
	session.ExcusedCount = 0
	for _, record := range records {
		switch record.Status {
		case models.StatusPresent:
			session.PresentCount++
		case models.StatusAbsent:
			session.AbsentCount++
		case models.StatusLate:
			session.LateCount++
		case models.StatusExcused:
			session.ExcusedCount++
		}
	}

	now := time.Now()
	session.IsFinalized = true
	session.EndTime = &now

	if err := s.attendanceRepo.SaveSession(session); err != nil {
		return nil, err
	}

	log.Printf("attendance: finalized session %d - %d students, %d present (%.1f%%)",
		sessionID, session.TotalStudents, session.PresentCount, session.AttendanceRate())
	return session, nil
}

// MarkAbsentUnrecorded inserts absent records for active students of the
// session's classroom that have no record yet. Students that already have a
// record are left alone, which makes the operation safe to repeat. A
// finalized session is closed to new records, same as RecordAttendance.
func (s *AttendanceService) MarkAbsentUnrecorded(sessionID uint) (int, error) {
	session, err := s.attendanceRepo.GetSessionByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	if session.IsFinalized {
		return 0, ErrSessionFinalized
	}

	students, err := s.studentRepo.ListActiveByClassroom(session.ClassroomID)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, student := range students {
		_, err := s.attendanceRepo.GetRecord(student.ID, sessionID)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return marked, err
		}

		note := models.AbsentSweepNote
		record := &models.AttendanceRecord{
			StudentID:   student.ID,
			SessionID:   sessionID,
			ClassroomID: session.ClassroomID,
			Status:      models.StatusAbsent,
			Notes:       &note,
		}
		if err := s.attendanceRepo.CreateRecord(record); err != nil {
			// a racing check-in beat us to it; that record wins
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return marked, err
		}
		marked++
	}

	if marked > 0 {
		log.Printf("attendance: auto-marked %d students absent in session %d", marked, sessionID)
	}
	return marked, nil
}

// SweepStaleSessions closes every open session older than the configured
// deadline: unrecorded active students are marked absent, then the session is
// finalized. Idempotent, and one bad session never blocks the batch.
func (s *AttendanceService) SweepStaleSessions() (SweepResult, error) {
	cutoff := time.Now().Add(-s.absentDeadline)

	sessions, err := s.attendanceRepo.ListUnfinalizedBefore(cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, session := range sessions {
		marked, err := s.MarkAbsentUnrecorded(session.ID)
		if err != nil {
			log.Printf("attendance: ERROR sweeping session %d: %v", session.ID, err)
			result.Errors++
			continue
		}
		if _, err := s.FinalizeSession(session.ID); err != nil {
			log.Printf("attendance: ERROR finalizing swept session %d: %v", session.ID, err)
			result.Errors++
			continue
		}
		result.SessionsProcessed++
		result.StudentsMarked += marked
	}

	log.Printf("attendance: sweep completed - %d sessions closed, %d students marked absent, %d errors",
		result.SessionsProcessed, result.StudentsMarked, result.Errors)
	return result, nil
}
