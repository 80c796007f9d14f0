package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/database"
	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/recognition"
	"github.com/huyng1801/diem-danh/repository"
	"github.com/huyng1801/diem-danh/services"
	"github.com/huyng1801/diem-danh/uploads"
	"github.com/huyng1801/diem-danh/utils"
	"github.com/huyng1801/diem-danh/workers"
)

type AttendanceHandler struct {
	Attendance     *services.AttendanceService
	Recognition    *services.RecognitionService
	AttendanceRepo repository.AttendanceRepositoryInterface
	Jobs           *workers.JobProcessor
	Store          uploads.Store
	ReportDB       *sql.DB
}

// checkInResult is the per-face outcome of a face check-in request.
type checkInResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Recorded   bool    `json:"recorded"`
	Reason     string  `json:"reason,omitempty"`
}

func (ah *AttendanceHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassroomID  uint   `json:"classroom_id"`
		Date         string `json:"date"` // YYYY-MM-DD, defaults to today
		SessionType  string `json:"session_type"`
		RecordedByID *uint  `json:"recorded_by_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.ClassroomID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: classroom_id"})
		return
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse(services.SessionDateFormat, req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	session, err := ah.Attendance.CreateOrGetSession(req.ClassroomID, date, req.SessionType, req.RecordedByID)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSessionType) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid session_type, expected morning or afternoon"})
			return
		}
		log.Printf("Error creating session for classroom %d: %v", req.ClassroomID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create session"})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (ah *AttendanceHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUintParam(w, r, "session_id")
	if !ok {
		return
	}

	session, err := ah.AttendanceRepo.GetSessionByID(sessionID)
	if err != nil {
		writeSessionError(w, sessionID, err)
		return
	}

	recordCount, err := ah.AttendanceRepo.CountRecordsBySession(sessionID)
	if err != nil {
		log.Printf("Error counting records for session %d: %v", sessionID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":         session,
		"state":           session.State(int(recordCount)),
		"record_count":    recordCount,
		"attendance_rate": session.AttendanceRate(),
	})
}

func (ah *AttendanceHandler) ListSessionRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUintParam(w, r, "session_id")
	if !ok {
		return
	}

	if _, err := ah.AttendanceRepo.GetSessionByID(sessionID); err != nil {
		writeSessionError(w, sessionID, err)
		return
	}

	records, err := ah.AttendanceRepo.ListRecordsBySession(sessionID)
	if err != nil {
		log.Printf("Error listing records for session %d: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve records"})
		return
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// RecordManual writes or merges one attendance record entered by a teacher,
// bypassing recognition. Confidence is optional and defaults to zero, so a
// manual entry never downgrades a face-recognized record.
func (ah *AttendanceHandler) RecordManual(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUintParam(w, r, "session_id")
	if !ok {
		return
	}

	var req struct {
		StudentID    uint    `json:"student_id"`
		Status       string  `json:"status"`
		Notes        *string `json:"notes"`
		RecordedByID *uint   `json:"recorded_by_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.StudentID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required field: student_id"})
		return
	}

	record, err := ah.Attendance.RecordAttendance(req.StudentID, sessionID, req.Status, services.RecordOptions{
		Notes:        req.Notes,
		RecordedByID: req.RecordedByID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidStatus):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid status"})
		case errors.Is(err, services.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		case errors.Is(err, services.ErrSessionFinalized):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Session is finalized"})
		case errors.Is(err, services.ErrStudentNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		default:
			log.Printf("Error recording attendance for student %d in session %d: %v", req.StudentID, sessionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to record attendance"})
		}
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// FaceCheckIn accepts a camera snapshot, recognizes every face in it and
// writes a present record for each match that clears the record threshold.
// Unknown or low-confidence faces are reported back but never written.
func (ah *AttendanceHandler) FaceCheckIn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUintParam(w, r, "session_id")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_form", "Invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_image", "Missing required file field: image")
		return
	}
	defer file.Close()

	if !utils.IsRasterImage(header.Filename) {
		WriteAPIError(w, http.StatusBadRequest, "unsupported_type", "Unsupported image type")
		return
	}

	savedPath, err := ah.Store.Save(uploads.AssetTypeSnapshot, strconv.FormatUint(uint64(sessionID), 10), header.Filename, file)
	if err != nil {
		log.Printf("Error saving check-in snapshot for session %d: %v", sessionID, err)
		WriteAPIError(w, http.StatusInternalServerError, "storage_failed", "Failed to store snapshot")
		return
	}

	matches, err := ah.Recognition.Recognize(savedPath)
	if err != nil {
		if errors.Is(err, services.ErrGalleryNotLoaded) {
			WriteAPIError(w, http.StatusConflict, "gallery_not_loaded", "No face gallery is loaded; train first")
			return
		}
		log.Printf("Error recognizing check-in snapshot %s: %v", savedPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "recognition_failed", "Failed to process snapshot")
		return
	}

	results := make([]checkInResult, 0, len(matches))
	recorded := 0
	for _, match := range matches {
		res := checkInResult{Label: match.Label, Confidence: match.Confidence}

		if match.Label == recognition.UnknownLabel {
			res.Reason = "face not recognized"
			results = append(results, res)
			continue
		}

		_, err := ah.Attendance.RecordFaceCheckIn(match.Label, match.Confidence, sessionID, &savedPath)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrLowConfidence):
				res.Reason = "confidence below record threshold"
			case errors.Is(err, services.ErrStudentNotFound):
				res.Reason = "no student with this code"
			case errors.Is(err, services.ErrStudentInactive):
				res.Reason = "student is not active"
			case errors.Is(err, services.ErrSessionNotFound):
				WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found")
				return
			case errors.Is(err, services.ErrSessionFinalized):
				WriteAPIError(w, http.StatusConflict, "session_finalized", "Session is finalized")
				return
			default:
				log.Printf("Error recording check-in for %s in session %d: %v", match.Label, sessionID, err)
				res.Reason = "failed to record"
			}
			results = append(results, res)
			continue
		}

		res.Recorded = true
		recorded++
		results = append(results, res)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"faces_found":    len(matches),
		"recorded_count": recorded,
		"results":        results,
		"snapshot_path":  savedPath,
	})
}

func (ah *AttendanceHandler) FinalizeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUintParam(w, r, "session_id")
	if !ok {
		return
	}

	session, err := ah.Attendance.FinalizeSession(sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
			return
		}
		log.Printf("Error finalizing session %d: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to finalize session"})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// TriggerSweep queues an absentee sweep run on the worker pool. The sweep is
// driven by an external scheduler calling this endpoint, never by a timer.
func (ah *AttendanceHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if !ah.Jobs.QueueSweep() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "A sweep is already queued or in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Absentee sweep queued"})
}

// ClassReport aggregates attendance for a classroom over a date range:
// per-date status counts plus students whose absences meet min_absences.
func (ah *AttendanceHandler) ClassReport(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseUintParam(w, r, "classroom_id")
	if !ok {
		return
	}

	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	if startDate == "" || endDate == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required query params: start_date, end_date"})
		return
	}
	if _, err := time.Parse(services.SessionDateFormat, startDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid start_date, expected YYYY-MM-DD"})
		return
	}
	if _, err := time.Parse(services.SessionDateFormat, endDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid end_date, expected YYYY-MM-DD"})
		return
	}

	var sessionType *string
	if st := r.URL.Query().Get("session_type"); st != "" {
		if !models.IsValidSessionType(st) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid session_type"})
			return
		}
		sessionType = &st
	}

	minAbsences := 3
	if raw := r.URL.Query().Get("min_absences"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid min_absences"})
			return
		}
		minAbsences = parsed
	}

	statusCounts, err := database.GetClassroomStatusCounts(ah.ReportDB, classroomID, startDate, endDate, sessionType)
	if err != nil {
		log.Printf("Error building status report for classroom %d: %v", classroomID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build report"})
		return
	}
	if statusCounts == nil {
		statusCounts = []database.StatusCountRow{}
	}

	highAbsence, err := database.GetHighAbsenceStudents(ah.ReportDB, classroomID, startDate, endDate, minAbsences)
	if err != nil {
		log.Printf("Error building absence report for classroom %d: %v", classroomID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build report"})
		return
	}
	if highAbsence == nil {
		highAbsence = []database.StudentAbsenceRow{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"classroom_id":  classroomID,
		"start_date":    startDate,
		"end_date":      endDate,
		"status_counts": statusCounts,
		"high_absence":  highAbsence,
	})
}

func writeSessionError(w http.ResponseWriter, sessionID uint, err error) {
	if errors.Is(err, services.ErrSessionNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	log.Printf("Error getting session %d: %v", sessionID, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve session"})
}
