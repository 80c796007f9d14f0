package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
)

func seedReportData(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := InitGormDB(filepath.Join(t.TempDir(), "report_test.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(db))

	classroom := models.Classroom{Name: "6A1", Grade: "6", AcademicYear: "2025-2026"}
	require.NoError(t, db.Create(&classroom).Error)

	students := []models.Student{
		{StudentCode: "SV001", FullName: "Student 1", ClassroomID: classroom.ID, IsActive: true},
		{StudentCode: "SV002", FullName: "Student 2", ClassroomID: classroom.ID, IsActive: true},
	}
	require.NoError(t, db.Create(&students).Error)

	sessions := []models.AttendanceSession{
		{ClassroomID: classroom.ID, SessionDate: "2026-03-02", SessionType: models.SessionMorning, StartTime: time.Now()},
		{ClassroomID: classroom.ID, SessionDate: "2026-03-03", SessionType: models.SessionMorning, StartTime: time.Now()},
		{ClassroomID: classroom.ID, SessionDate: "2026-03-03", SessionType: models.SessionAfternoon, StartTime: time.Now()},
	}
	require.NoError(t, db.Create(&sessions).Error)

	records := []models.AttendanceRecord{
		{StudentID: students[0].ID, SessionID: sessions[0].ID, ClassroomID: classroom.ID, Status: models.StatusPresent},
		{StudentID: students[1].ID, SessionID: sessions[0].ID, ClassroomID: classroom.ID, Status: models.StatusAbsent},
		{StudentID: students[0].ID, SessionID: sessions[1].ID, ClassroomID: classroom.ID, Status: models.StatusPresent},
		{StudentID: students[1].ID, SessionID: sessions[1].ID, ClassroomID: classroom.ID, Status: models.StatusAbsent},
		{StudentID: students[1].ID, SessionID: sessions[2].ID, ClassroomID: classroom.ID, Status: models.StatusAbsent},
	}
	require.NoError(t, db.Create(&records).Error)

	return db
}

func TestGetClassroomStatusCounts(t *testing.T) {
	db := seedReportData(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	rows, err := GetClassroomStatusCounts(sqlDB, 1, "2026-03-01", "2026-03-31", nil)
	require.NoError(t, err)

	counts := map[string]int{}
	for _, row := range rows {
		counts[row.SessionDate+"/"+row.Status] += row.Count
	}
	assert.Equal(t, 1, counts["2026-03-02/present"])
	assert.Equal(t, 1, counts["2026-03-02/absent"])
	assert.Equal(t, 1, counts["2026-03-03/present"])
	assert.Equal(t, 2, counts["2026-03-03/absent"])

	// narrowing to morning drops the afternoon absence
	morning := models.SessionMorning
	rows, err = GetClassroomStatusCounts(sqlDB, 1, "2026-03-01", "2026-03-31", &morning)
	require.NoError(t, err)
	total := 0
	for _, row := range rows {
		total += row.Count
	}
	assert.Equal(t, 4, total)

	// outside the date range nothing matches
	rows, err = GetClassroomStatusCounts(sqlDB, 1, "2026-04-01", "2026-04-30", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetHighAbsenceStudents(t *testing.T) {
	db := seedReportData(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	rows, err := GetHighAbsenceStudents(sqlDB, 1, "2026-03-01", "2026-03-31", 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SV002", rows[0].StudentCode)
	assert.Equal(t, 3, rows[0].AbsentCount)

	rows, err = GetHighAbsenceStudents(sqlDB, 1, "2026-03-01", "2026-03-31", 4)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
