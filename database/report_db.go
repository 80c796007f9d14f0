package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/huyng1801/diem-danh/models"
)

// StatusCountRow is one (date, status) aggregate for a classroom report.
type StatusCountRow struct {
	SessionDate string `json:"session_date"`
	Status      string `json:"status"`
	Count       int    `json:"count"`
}

// StudentAbsenceRow is one student's absence tally over a date range.
type StudentAbsenceRow struct {
	StudentID   uint   `json:"student_id"`
	StudentCode string `json:"student_code"`
	FullName    string `json:"full_name"`
	AbsentCount int    `json:"absent_count"`
}

// GetClassroomStatusCounts returns per-date, per-status record counts for a
// classroom between startDate and endDate (inclusive, YYYY-MM-DD). Passing a
// non-nil sessionType narrows the report to morning or afternoon sessions.
func GetClassroomStatusCounts(db *sql.DB, classroomID uint, startDate, endDate string, sessionType *string) ([]StatusCountRow, error) {
	builder := sq.Select("s.session_date", "r.status", "COUNT(*)").
		From("attendance_records r").
		Join("attendance_sessions s ON s.id = r.session_id").
		Where(sq.Eq{"s.classroom_id": classroomID}).
		Where(sq.GtOrEq{"s.session_date": startDate}).
		Where(sq.LtOrEq{"s.session_date": endDate}).
		GroupBy("s.session_date", "r.status").
		OrderBy("s.session_date ASC")

	if sessionType != nil {
		builder = builder.Where(sq.Eq{"s.session_type": *sessionType})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build status count query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	var results []StatusCountRow
	for rows.Next() {
		var row StatusCountRow
		if err := rows.Scan(&row.SessionDate, &row.Status, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetHighAbsenceStudents returns students in a classroom whose absence count in
// the date range meets minAbsences, most absent first.
func GetHighAbsenceStudents(db *sql.DB, classroomID uint, startDate, endDate string, minAbsences int) ([]StudentAbsenceRow, error) {
	builder := sq.Select("st.id", "st.student_code", "st.full_name", "COUNT(*) AS absences").
		From("attendance_records r").
		Join("attendance_sessions s ON s.id = r.session_id").
		Join("students st ON st.id = r.student_id").
		Where(sq.Eq{"s.classroom_id": classroomID, "r.status": models.StatusAbsent}).
		Where(sq.GtOrEq{"s.session_date": startDate}).
		Where(sq.LtOrEq{"s.session_date": endDate}).
		GroupBy("st.id", "st.student_code", "st.full_name").
		Having(sq.GtOrEq{"COUNT(*)": minAbsences}).
		OrderBy("absences DESC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build absence query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query high absence students: %w", err)
	}
	defer rows.Close()

	var results []StudentAbsenceRow
	for rows.Next() {
		var row StudentAbsenceRow
		if err := rows.Scan(&row.StudentID, &row.StudentCode, &row.FullName, &row.AbsentCount); err != nil {
			return nil, fmt.Errorf("failed to scan absence row: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
