package repository

import (
	"time"

	"github.com/huyng1801/diem-danh/models"
)

// ClassroomRepositoryInterface defines the methods for classroom data operations
type ClassroomRepositoryInterface interface {
	Create(classroom *models.Classroom) error
	GetByID(id uint) (*models.Classroom, error)
	ListAll() ([]models.Classroom, error)
	Update(classroom *models.Classroom) error
	Delete(id uint) error
}

// StudentRepositoryInterface defines the methods for student data operations.
// The roster methods are the active-student provider consumed by session
// creation, finalization and the absentee sweep.
type StudentRepositoryInterface interface {
	Create(student *models.Student) error
	GetByID(id uint) (*models.Student, error)
	GetByCode(code string) (*models.Student, error)
	ListByClassroom(classroomID uint) ([]models.Student, error)
	ListActiveByClassroom(classroomID uint) ([]models.Student, error)
	CountActiveByClassroom(classroomID uint) (int64, error)
	ListActiveWithImages() ([]models.Student, error)
	Update(student *models.Student) error
	Deactivate(id uint) error
}

// StudentImageRepositoryInterface defines the methods for enrollment image data
type StudentImageRepositoryInterface interface {
	Create(image *models.StudentImage) error
	ListByStudentID(studentID uint) ([]models.StudentImage, error)
	CountByStudentID(studentID uint) (int64, error)
	Delete(id uint) error
}

// UserRepositoryInterface defines the methods for user data operations
type UserRepositoryInterface interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
}

// AttendanceRepositoryInterface defines the methods for session and record
// data operations
type AttendanceRepositoryInterface interface {
	CreateSession(session *models.AttendanceSession) error
	GetSessionByID(id uint) (*models.AttendanceSession, error)
	GetSessionByKey(classroomID uint, sessionDate, sessionType string) (*models.AttendanceSession, error)
	SaveSession(session *models.AttendanceSession) error
	ListUnfinalizedBefore(cutoff time.Time) ([]models.AttendanceSession, error)

	CreateRecord(record *models.AttendanceRecord) error
	GetRecord(studentID, sessionID uint) (*models.AttendanceRecord, error)
	UpdateRecord(record *models.AttendanceRecord) error
	ListRecordsBySession(sessionID uint) ([]models.AttendanceRecord, error)
	CountRecordsBySession(sessionID uint) (int64, error)
}
