package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/config"
	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/repository"
	"github.com/huyng1801/diem-danh/uploads"
	"github.com/huyng1801/diem-danh/utils"
)

const (
	maxUploadSize   = 20 << 20 // 20 MiB
	thumbnailWidth  = 200
	thumbnailHeight = 200
)

type StudentHandler struct {
	StudentRepo repository.StudentRepositoryInterface
	ImageRepo   repository.StudentImageRepositoryInterface
	Store       uploads.Store
	Cfg         config.Config
}

func (sh *StudentHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentCode string  `json:"student_code"`
		FullName    string  `json:"full_name"`
		ClassroomID uint    `json:"classroom_id"`
		DateOfBirth *string `json:"date_of_birth"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.StudentCode) == "" || strings.TrimSpace(req.FullName) == "" || req.ClassroomID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields: student_code, full_name, classroom_id"})
		return
	}

	student := &models.Student{
		StudentCode: strings.TrimSpace(req.StudentCode),
		FullName:    strings.TrimSpace(req.FullName),
		ClassroomID: req.ClassroomID,
		DateOfBirth: req.DateOfBirth,
		IsActive:    true,
	}
	if err := sh.StudentRepo.Create(student); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Student code already exists"})
			return
		}
		log.Printf("Error creating student '%s': %v", req.StudentCode, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create student"})
		return
	}

	writeJSON(w, http.StatusCreated, student)
}

func (sh *StudentHandler) GetStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseUintParam(w, r, "student_id")
	if !ok {
		return
	}

	student, err := sh.StudentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error getting student %d: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve student"})
		}
		return
	}

	imageCount, err := sh.ImageRepo.CountByStudentID(studentID)
	if err != nil {
		log.Printf("Error counting enrollment images for student %d: %v", studentID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student":          student,
		"image_count":      imageCount,
		"enrollment_ready": imageCount >= int64(sh.Cfg.MinImagesPerStudent),
	})
}

func (sh *StudentHandler) DeactivateStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseUintParam(w, r, "student_id")
	if !ok {
		return
	}

	if err := sh.StudentRepo.Deactivate(studentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error deactivating student %d: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to deactivate student"})
		}
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// UploadFaceImage stores one enrollment image for a student. The file lands
// under the student faces directory keyed by student code, a preview thumbnail
// is generated, and the EXIF capture time is kept when present. The response
// reports whether the student has enough images to be enrolled at the next
// gallery build.
func (sh *StudentHandler) UploadFaceImage(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseUintParam(w, r, "student_id")
	if !ok {
		return
	}

	student, err := sh.StudentRepo.GetByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Student not found"})
		} else {
			log.Printf("Error getting student %d: %v", studentID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve student"})
		}
		return
	}
	if !student.IsActive {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Student is not active"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form: " + err.Error()})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required file field: image"})
		return
	}
	defer file.Close()

	if !utils.IsRasterImage(header.Filename) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unsupported image type: " + filepath.Ext(header.Filename)})
		return
	}

	savedPath, err := sh.Store.Save(uploads.AssetTypeStudentFace, student.StudentCode, header.Filename, file)
	if err != nil {
		log.Printf("Error saving enrollment image for student %s: %v", student.StudentCode, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to store image"})
		return
	}

	thumbDir := filepath.Join(filepath.Dir(savedPath), "thumbnails")
	if _, err := utils.GenerateThumbnail(savedPath, thumbDir, thumbnailWidth, thumbnailHeight); err != nil {
		// the full-size image is what training uses; a failed preview is not fatal
		log.Printf("Error generating thumbnail for %s: %v", savedPath, err)
	}

	image := &models.StudentImage{
		StudentID: student.ID,
		Path:      savedPath,
		FileName:  header.Filename,
		TakenAt:   utils.GetImageTakenAt(savedPath),
	}
	if err := sh.ImageRepo.Create(image); err != nil {
		log.Printf("Error recording enrollment image for student %s: %v", student.StudentCode, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to record image"})
		return
	}

	imageCount, err := sh.ImageRepo.CountByStudentID(student.ID)
	if err != nil {
		log.Printf("Error counting enrollment images for student %d: %v", student.ID, err)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"image":            image,
		"image_count":      imageCount,
		"enrollment_ready": imageCount >= int64(sh.Cfg.MinImagesPerStudent),
	})
}

func (sh *StudentHandler) ListFaceImages(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseUintParam(w, r, "student_id")
	if !ok {
		return
	}

	images, err := sh.ImageRepo.ListByStudentID(studentID)
	if err != nil {
		log.Printf("Error listing enrollment images for student %d: %v", studentID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to retrieve images"})
		return
	}
	if images == nil {
		images = []models.StudentImage{}
	}
	writeJSON(w, http.StatusOK, images)
}
