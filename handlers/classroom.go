package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/repository"
)

type ClassroomHandler struct {
	ClassroomRepo repository.ClassroomRepositoryInterface
	StudentRepo   repository.StudentRepositoryInterface
}

func (ch *ClassroomHandler) CreateClassroom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Grade        string `json:"grade"`
		AcademicYear string `json:"academic_year"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.AcademicYear) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields: name, academic_year"})
		return
	}

	classroom := &models.Classroom{
		Name:         req.Name,
		Grade:        req.Grade,
		AcademicYear: req.AcademicYear,
	}
	if err := ch.ClassroomRepo.Create(classroom); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Classroom already exists for this academic year"})
			return
		}
		log.Printf("Error creating classroom '%s': %v", req.Name, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create classroom"})
		return
	}

	writeJSON(w, http.StatusCreated, classroom)
}

func (ch *ClassroomHandler) ListClassrooms(w http.ResponseWriter, r *http.Request) {
	classrooms, err := ch.ClassroomRepo.ListAll()
	if err != nil {
		log.Printf("Error listing classrooms: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve classrooms"})
		return
	}
	if classrooms == nil {
		classrooms = []models.Classroom{}
	}
	writeJSON(w, http.StatusOK, classrooms)
}

func (ch *ClassroomHandler) GetClassroom(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseUintParam(w, r, "classroom_id")
	if !ok {
		return
	}

	classroom, err := ch.ClassroomRepo.GetByID(classroomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Classroom not found"})
		} else {
			log.Printf("Error getting classroom %d: %v", classroomID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve classroom"})
		}
		return
	}

	writeJSON(w, http.StatusOK, classroom)
}

func (ch *ClassroomHandler) ListClassroomStudents(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseUintParam(w, r, "classroom_id")
	if !ok {
		return
	}

	students, err := ch.StudentRepo.ListByClassroom(classroomID)
	if err != nil {
		log.Printf("Error listing students for classroom %d: %v", classroomID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve students"})
		return
	}
	if students == nil {
		students = []models.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

// parseUintParam reads a numeric chi URL parameter, writing the 400 itself on
// failure.
func parseUintParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	idStr := chi.URLParam(r, name)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid " + name + " format"})
		return 0, false
	}
	return uint(id), true
}
