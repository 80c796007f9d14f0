package services

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huyng1801/diem-danh/database"
	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/repository"
)

type attendanceFixture struct {
	service        *AttendanceService
	attendanceRepo repository.AttendanceRepositoryInterface
	studentRepo    repository.StudentRepositoryInterface
	classroom      *models.Classroom
	students       []models.Student
}

// newAttendanceFixture spins up a sqlite-backed service with one classroom and
// numStudents active students.
func newAttendanceFixture(t *testing.T, numStudents int) *attendanceFixture {
	t.Helper()

	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "attendance_test.db"))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	classroomRepo := repository.NewClassroomRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	classroom := &models.Classroom{Name: "6A1", Grade: "6", AcademicYear: "2025-2026"}
	require.NoError(t, classroomRepo.Create(classroom))

	var students []models.Student
	for i := 1; i <= numStudents; i++ {
		student := models.Student{
			StudentCode: fmt.Sprintf("SV%03d", i),
			FullName:    fmt.Sprintf("Student %d", i),
			ClassroomID: classroom.ID,
			IsActive:    true,
		}
		require.NoError(t, studentRepo.Create(&student))
		students = append(students, student)
	}

	service := NewAttendanceService(attendanceRepo, studentRepo, classroomRepo, 0.80, 8*time.Hour)
	return &attendanceFixture{
		service:        service,
		attendanceRepo: attendanceRepo,
		studentRepo:    studentRepo,
		classroom:      classroom,
		students:       students,
	}
}

func TestCreateOrGetSessionIdempotent(t *testing.T) {
	fx := newAttendanceFixture(t, 4)
	date := time.Date(2026, 3, 2, 7, 0, 0, 0, time.Local)

	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, date, models.SessionMorning, nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", session.SessionDate)
	assert.Equal(t, 4, session.TotalStudents)
	assert.False(t, session.IsFinalized)

	again, err := fx.service.CreateOrGetSession(fx.classroom.ID, date, models.SessionMorning, nil)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)

	// a different session type on the same day is a separate session
	afternoon, err := fx.service.CreateOrGetSession(fx.classroom.ID, date, models.SessionAfternoon, nil)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, afternoon.ID)
}

func TestCreateOrGetSessionValidation(t *testing.T) {
	fx := newAttendanceFixture(t, 1)

	_, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), "evening", nil)
	assert.ErrorIs(t, err, ErrInvalidSessionType)

	_, err = fx.service.CreateOrGetSession(9999, time.Now(), models.SessionMorning, nil)
	assert.Error(t, err)
}

func TestRecordAttendanceHigherConfidenceWins(t *testing.T) {
	fx := newAttendanceFixture(t, 2)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)
	student := fx.students[0]

	record, err := fx.service.RecordAttendance(student.ID, session.ID, models.StatusLate, RecordOptions{
		Confidence: 0.70, IsFaceRecognized: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, record.Status)
	assert.InDelta(t, 0.70, record.FaceConfidence, 1e-9)
	require.NotNil(t, record.CheckInTime)

	// strictly higher confidence overwrites status and confidence
	record, err = fx.service.RecordAttendance(student.ID, session.ID, models.StatusPresent, RecordOptions{
		Confidence: 0.95, IsFaceRecognized: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, record.Status)
	assert.InDelta(t, 0.95, record.FaceConfidence, 1e-9)

	// equal or lower confidence leaves the stored record untouched
	record, err = fx.service.RecordAttendance(student.ID, session.ID, models.StatusAbsent, RecordOptions{
		Confidence: 0.95,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, record.Status)
	assert.InDelta(t, 0.95, record.FaceConfidence, 1e-9)

	// still exactly one record for the pair
	count, err := fx.attendanceRepo.CountRecordsBySession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordAttendanceValidation(t *testing.T) {
	fx := newAttendanceFixture(t, 1)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	_, err = fx.service.RecordAttendance(fx.students[0].ID, session.ID, "vanished", RecordOptions{})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = fx.service.RecordAttendance(fx.students[0].ID, session.ID, models.StatusPresent, RecordOptions{Confidence: 1.5})
	assert.ErrorIs(t, err, ErrInvalidConfidence)

	_, err = fx.service.RecordAttendance(fx.students[0].ID, 9999, models.StatusPresent, RecordOptions{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = fx.service.RecordAttendance(9999, session.ID, models.StatusPresent, RecordOptions{})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestRecordAttendanceRejectsFinalizedSession(t *testing.T) {
	fx := newAttendanceFixture(t, 1)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	_, err = fx.service.FinalizeSession(session.ID)
	require.NoError(t, err)

	_, err = fx.service.RecordAttendance(fx.students[0].ID, session.ID, models.StatusPresent, RecordOptions{})
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestRecordFaceCheckInGates(t *testing.T) {
	fx := newAttendanceFixture(t, 2)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	// below the write threshold, even though the matcher labeled it
	_, err = fx.service.RecordFaceCheckIn(fx.students[0].StudentCode, 0.65, session.ID, nil)
	assert.ErrorIs(t, err, ErrLowConfidence)

	_, err = fx.service.RecordFaceCheckIn("SV999", 0.95, session.ID, nil)
	assert.ErrorIs(t, err, ErrStudentNotFound)

	require.NoError(t, fx.studentRepo.Deactivate(fx.students[1].ID))
	_, err = fx.service.RecordFaceCheckIn(fx.students[1].StudentCode, 0.95, session.ID, nil)
	assert.ErrorIs(t, err, ErrStudentInactive)

	record, err := fx.service.RecordFaceCheckIn(fx.students[0].StudentCode, 0.92, session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, record.Status)
	assert.True(t, record.IsFaceRecognized)
	assert.InDelta(t, 0.92, record.FaceConfidence, 1e-9)
}

func TestFinalizeSessionRecomputesCounts(t *testing.T) {
	fx := newAttendanceFixture(t, 5)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	_, err = fx.service.RecordAttendance(fx.students[0].ID, session.ID, models.StatusPresent, RecordOptions{})
	require.NoError(t, err)
	_, err = fx.service.RecordAttendance(fx.students[1].ID, session.ID, models.StatusPresent, RecordOptions{})
	require.NoError(t, err)
	_, err = fx.service.RecordAttendance(fx.students[2].ID, session.ID, models.StatusLate, RecordOptions{})
	require.NoError(t, err)
	_, err = fx.service.RecordAttendance(fx.students[3].ID, session.ID, models.StatusExcused, RecordOptions{})
	require.NoError(t, err)

	finalized, err := fx.service.FinalizeSession(session.ID)
	require.NoError(t, err)

	assert.True(t, finalized.IsFinalized)
	require.NotNil(t, finalized.EndTime)
	assert.Equal(t, 5, finalized.TotalStudents)
	assert.Equal(t, 2, finalized.PresentCount)
	assert.Equal(t, 1, finalized.LateCount)
	assert.Equal(t, 1, finalized.ExcusedCount)
	assert.Equal(t, 0, finalized.AbsentCount)
	assert.InDelta(t, 40.0, finalized.AttendanceRate(), 1e-9)

	// finalizing again is a no-op recompute, not an error
	again, err := fx.service.FinalizeSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, finalized.PresentCount, again.PresentCount)
}

func TestSweepStaleSessions(t *testing.T) {
	fx := newAttendanceFixture(t, 5)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	_, err = fx.service.RecordFaceCheckIn(fx.students[0].StudentCode, 0.95, session.ID, nil)
	require.NoError(t, err)
	_, err = fx.service.RecordFaceCheckIn(fx.students[1].StudentCode, 0.90, session.ID, nil)
	require.NoError(t, err)

	// age the session past the deadline
	session.StartTime = time.Now().Add(-9 * time.Hour)
	require.NoError(t, fx.attendanceRepo.SaveSession(session))

	result, err := fx.service.SweepStaleSessions()
	require.NoError(t, err)
	assert.Equal(t, 1, result.SessionsProcessed)
	assert.Equal(t, 3, result.StudentsMarked)
	assert.Equal(t, 0, result.Errors)

	swept, err := fx.attendanceRepo.GetSessionByID(session.ID)
	require.NoError(t, err)
	assert.True(t, swept.IsFinalized)
	assert.Equal(t, 2, swept.PresentCount)
	assert.Equal(t, 3, swept.AbsentCount)
	assert.InDelta(t, 40.0, swept.AttendanceRate(), 1e-9)

	records, err := fx.attendanceRepo.ListRecordsBySession(session.ID)
	require.NoError(t, err)
	sweepNoted := 0
	for _, record := range records {
		if record.Status == models.StatusAbsent {
			require.NotNil(t, record.Notes)
			assert.Equal(t, models.AbsentSweepNote, *record.Notes)
			assert.Nil(t, record.CheckInTime)
			sweepNoted++
		}
	}
	assert.Equal(t, 3, sweepNoted)

	// a second sweep finds nothing left to close
	result, err = fx.service.SweepStaleSessions()
	require.NoError(t, err)
	assert.Equal(t, 0, result.SessionsProcessed)
	assert.Equal(t, 0, result.StudentsMarked)
}

func TestMarkAbsentUnrecordedRejectsFinalizedSession(t *testing.T) {
	fx := newAttendanceFixture(t, 3)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	_, err = fx.service.FinalizeSession(session.ID)
	require.NoError(t, err)

	marked, err := fx.service.MarkAbsentUnrecorded(session.ID)
	assert.ErrorIs(t, err, ErrSessionFinalized)
	assert.Equal(t, 0, marked)

	// the frozen record set did not grow
	count, err := fx.attendanceRepo.CountRecordsBySession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = fx.service.MarkAbsentUnrecorded(9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepIgnoresFreshSessions(t *testing.T) {
	fx := newAttendanceFixture(t, 2)
	session, err := fx.service.CreateOrGetSession(fx.classroom.ID, time.Now(), models.SessionMorning, nil)
	require.NoError(t, err)

	result, err := fx.service.SweepStaleSessions()
	require.NoError(t, err)
	assert.Equal(t, 0, result.SessionsProcessed)

	fresh, err := fx.attendanceRepo.GetSessionByID(session.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsFinalized)
}
