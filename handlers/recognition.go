package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/huyng1801/diem-danh/services"
	"github.com/huyng1801/diem-danh/uploads"
	"github.com/huyng1801/diem-danh/utils"
	"github.com/huyng1801/diem-danh/workers"
)

type RecognitionHandler struct {
	Recognition *services.RecognitionService
	Jobs        *workers.JobProcessor
	Store       uploads.Store
}

// TrainGallery queues a gallery rebuild on the worker pool. Training runs in
// the background; clients poll the stats endpoint to observe the swap.
func (rh *RecognitionHandler) TrainGallery(w http.ResponseWriter, r *http.Request) {
	if !rh.Jobs.QueueTraining() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "A training run is already queued or in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Gallery training queued"})
}

// GetStats reports the state of the loaded gallery.
func (rh *RecognitionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rh.Recognition.GalleryStats())
}

// RecognizeImage runs ad-hoc recognition on an uploaded image and returns the
// per-face matches without touching attendance. Used for camera placement and
// threshold tuning.
func (rh *RecognitionHandler) RecognizeImage(w http.ResponseWriter, r *http.Request) {
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

	savedPath, err := rh.Store.Save(uploads.AssetTypeSnapshot, "", header.Filename, file)
	if err != nil {
		log.Printf("Error saving recognition snapshot: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "storage_failed", "Failed to store image")
		return
	}

	matches, err := rh.Recognition.Recognize(savedPath)
	if err != nil {
		if errors.Is(err, services.ErrGalleryNotLoaded) {
			WriteAPIError(w, http.StatusConflict, "gallery_not_loaded", "No face gallery is loaded; train first")
			return
		}
		log.Printf("Error recognizing %s: %v", savedPath, err)
		WriteAPIError(w, http.StatusInternalServerError, "recognition_failed", "Failed to process image")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"faces_found": len(matches),
		"matches":     matches,
		"image_path":  savedPath,
	})
}
