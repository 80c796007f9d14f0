package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
)

// AttendanceRepository handles database operations for attendance sessions and
// records. The unique indexes on (classroom, date, type) and (student, session)
// are the serialization points the service-level merge rules rely on.
type AttendanceRepository struct {
	DB *gorm.DB
}

var _ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

func (r *AttendanceRepository) CreateSession(session *models.AttendanceSession) error {
	if err := r.DB.Create(session).Error; err != nil {
		// gorm.ErrDuplicatedKey passes through untouched so callers can fall
		// back to the existing session
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return fmt.Errorf("failed to create attendance session: %w", err)
	}
	return nil
}

func (r *AttendanceRepository) GetSessionByID(id uint) (*models.AttendanceSession, error) {
	var session models.AttendanceSession
	err := r.DB.First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get attendance session by ID %d: %w", id, err)
	}
	return &session, nil
}

func (r *AttendanceRepository) GetSessionByKey(classroomID uint, sessionDate, sessionType string) (*models.AttendanceSession, error) {
	var session models.AttendanceSession
	err := r.DB.Where("classroom_id = ? AND session_date = ? AND session_type = ?",
		classroomID, sessionDate, sessionType).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get attendance session for classroom %d on %s (%s): %w",
			classroomID, sessionDate, sessionType, err)
	}
	return &session, nil
}

func (r *AttendanceRepository) SaveSession(session *models.AttendanceSession) error {
	if err := r.DB.Save(session).Error; err != nil {
		return fmt.Errorf("failed to save attendance session ID %d: %w", session.ID, err)
	}
	return nil
}

// ListUnfinalizedBefore returns open sessions whose start time is older than
// the cutoff; these are the sweep's candidates.
func (r *AttendanceRepository) ListUnfinalizedBefore(cutoff time.Time) ([]models.AttendanceSession, error) {
	var sessions []models.AttendanceSession
	err := r.DB.Where("is_finalized = ? AND start_time <= ?", false, cutoff).
		Order("start_time ASC").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale attendance sessions: %w", err)
	}
	return sessions, nil
}

func (r *AttendanceRepository) CreateRecord(record *models.AttendanceRecord) error {
	if err := r.DB.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return fmt.Errorf("failed to create attendance record for student %d in session %d: %w",
			record.StudentID, record.SessionID, err)
	}
	return nil
}

func (r *AttendanceRepository) GetRecord(studentID, sessionID uint) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.DB.Where("student_id = ? AND session_id = ?", studentID, sessionID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get attendance record for student %d in session %d: %w",
			studentID, sessionID, err)
	}
	return &record, nil
}

func (r *AttendanceRepository) UpdateRecord(record *models.AttendanceRecord) error {
	if err := r.DB.Save(record).Error; err != nil {
		return fmt.Errorf("failed to update attendance record ID %d: %w", record.ID, err)
	}
	return nil
}

func (r *AttendanceRepository) ListRecordsBySession(sessionID uint) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.DB.Where("session_id = ?", sessionID).Preload("Student").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records for session %d: %w", sessionID, err)
	}
	return records, nil
}

func (r *AttendanceRepository) CountRecordsBySession(sessionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.AttendanceRecord{}).Where("session_id = ?", sessionID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance records for session %d: %w", sessionID, err)
	}
	return count, nil
}
