package services

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"

	"github.com/facette/natsort"

	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/recognition"
	"github.com/huyng1801/diem-danh/repository"
)

// FaceExtractor abstracts the gocv-backed extractor so the engine can be
// exercised without native models.
type FaceExtractor interface {
	ExtractFile(imagePath string) ([]recognition.Detection, error)
}

// TrainedIdentity describes one successfully enrolled student.
type TrainedIdentity struct {
	StudentCode    string `json:"student_code"`
	FullName       string `json:"full_name"`
	EmbeddingCount int    `json:"embedding_count"`
}

// FailedIdentity describes one student that could not be enrolled and why.
// Failures are collected, never raised; a few failing students never abort
// the batch.
type FailedIdentity struct {
	StudentCode string `json:"student_code"`
	FullName    string `json:"full_name"`
	Reason      string `json:"reason"`
}

// TrainResult summarizes one gallery build.
type TrainResult struct {
	Success         bool              `json:"success"`
	TotalIdentities int               `json:"total_identities"`
	TrainedCount    int               `json:"trained_count"`
	FailedCount     int               `json:"failed_count"`
	TotalEmbeddings int               `json:"total_embeddings"`
	Trained         []TrainedIdentity `json:"trained"`
	Failed          []FailedIdentity  `json:"failed"`
	Message         string            `json:"message"`
}

// GalleryStats reports the state of the loaded gallery.
type GalleryStats struct {
	Loaded         bool    `json:"loaded"`
	TotalEntries   int     `json:"total_entries"`
	Identities     int     `json:"identities"`
	LabelThreshold float64 `json:"label_threshold"`
}

// RecognitionService owns the in-memory gallery snapshot and provides the two
// core operations: building the gallery from enrollment images and matching a
// live capture against it.
//
// The gallery is read-mostly and shared: BuildGallery assembles a complete new
// Gallery off to the side and swaps the pointer, so concurrent Recognize calls
// observe either the fully-old or fully-new gallery, never a mix.
type RecognitionService struct {
	extractor   FaceExtractor
	studentRepo repository.StudentRepositoryInterface

	galleryPath         string
	labelThreshold      float64
	minImagesPerStudent int
	minTotalEmbeddings  int

	gallery atomic.Pointer[recognition.Gallery]
}

// NewRecognitionService creates a new recognition service. labelThreshold is
// the lower "do we label at all" threshold; the stricter write-to-attendance
// threshold lives in the attendance service.
func NewRecognitionService(
	extractor FaceExtractor,
	studentRepo repository.StudentRepositoryInterface,
	galleryPath string,
	labelThreshold float64,
	minImagesPerStudent int,
	minTotalEmbeddings int,
) *RecognitionService {
	if minImagesPerStudent <= 0 {
		minImagesPerStudent = 1
	}
	return &RecognitionService{
		extractor:           extractor,
		studentRepo:         studentRepo,
		galleryPath:         galleryPath,
		labelThreshold:      labelThreshold,
		minImagesPerStudent: minImagesPerStudent,
		minTotalEmbeddings:  minTotalEmbeddings,
	}
}

// LoadGallery restores the persisted gallery blob, if one exists. A missing
// blob is not an error; recognition simply stays unavailable until training.
func (s *RecognitionService) LoadGallery() error {
	g, err := recognition.LoadGalleryFile(s.galleryPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("recognition: no persisted gallery at %s, starting without one", s.galleryPath)
			return nil
		}
		return fmt.Errorf("failed to load gallery: %w", err)
	}

	s.gallery.Store(g)
	log.Printf("recognition: loaded gallery with %d entries (%d identities)", g.Len(), g.IdentityCount())
	return nil
}

// GalleryStats returns the current snapshot's statistics.
func (s *RecognitionService) GalleryStats() GalleryStats {
	g := s.gallery.Load()
	stats := GalleryStats{LabelThreshold: s.labelThreshold}
	if g != nil && g.Len() > 0 {
		stats.Loaded = true
		stats.TotalEntries = g.Len()
		stats.Identities = g.IdentityCount()
	}
	return stats
}

// BuildGallery extracts one embedding per enrollment image for every active
// student with at least the minimum number of raw images, then atomically
// replaces the gallery if the batch produced enough embeddings overall.
//
// Per-student failures (too few images, no detectable faces) are reported in
// the result; only a batch that trains zero students is unsuccessful. The
// previous gallery stays in service whenever the new one is rejected.
func (s *RecognitionService) BuildGallery() (*TrainResult, error) {
	students, err := s.studentRepo.ListActiveWithImages()
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment set: %w", err)
	}

	result := &TrainResult{TotalIdentities: len(students)}

	var labels []string
	var embeddings [][]float32

	for _, student := range students {
		if len(student.Images) < s.minImagesPerStudent {
			result.Failed = append(result.Failed, FailedIdentity{
				StudentCode: student.StudentCode,
				FullName:    student.FullName,
				Reason: fmt.Sprintf("not enough enrollment images: found %d, need at least %d",
					len(student.Images), s.minImagesPerStudent),
			})
			continue
		}

		studentEmbeddings := s.extractStudentEmbeddings(student)
		if len(studentEmbeddings) == 0 {
			result.Failed = append(result.Failed, FailedIdentity{
				StudentCode: student.StudentCode,
				FullName:    student.FullName,
				Reason:      "no usable face found in any enrollment image",
			})
			continue
		}

		for _, emb := range studentEmbeddings {
			labels = append(labels, student.StudentCode)
			embeddings = append(embeddings, emb)
		}
		result.Trained = append(result.Trained, TrainedIdentity{
			StudentCode:    student.StudentCode,
			FullName:       student.FullName,
			EmbeddingCount: len(studentEmbeddings),
		})
		log.Printf("recognition: trained %s with %d/%d images",
			student.StudentCode, len(studentEmbeddings), len(student.Images))
	}

	result.TrainedCount = len(result.Trained)
	result.FailedCount = len(result.Failed)
	result.TotalEmbeddings = len(embeddings)

	if result.TrainedCount == 0 {
		result.Message = "training failed: no students could be enrolled"
		log.Printf("recognition: %s", result.Message)
		return result, nil
	}
	if result.TotalEmbeddings < s.minTotalEmbeddings {
		result.Message = fmt.Sprintf("training rejected: %d embeddings, need at least %d",
			result.TotalEmbeddings, s.minTotalEmbeddings)
		log.Printf("recognition: %s", result.Message)
		return result, nil
	}

	gallery, err := recognition.NewGallery(labels, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble gallery: %w", err)
	}

	if err := recognition.SaveGalleryFile(gallery, s.galleryPath); err != nil {
		return nil, err
	}

	s.gallery.Store(gallery)

	result.Success = true
	result.Message = fmt.Sprintf("training completed: %d/%d students enrolled, %d embeddings",
		result.TrainedCount, result.TotalIdentities, result.TotalEmbeddings)
	log.Printf("recognition: %s", result.Message)
	return result, nil
}

// extractStudentEmbeddings extracts one embedding per enrollment image, in
// natural filename order for a deterministic gallery. Images where detection
// finds nothing are skipped; when an image contains several faces the first
// detected region is used.
func (s *RecognitionService) extractStudentEmbeddings(student models.Student) [][]float32 {
	images := make([]models.StudentImage, len(student.Images))
	copy(images, student.Images)
	sort.Slice(images, func(i, j int) bool {
		return natsort.Compare(images[i].FileName, images[j].FileName)
	})

	var out [][]float32
	for _, img := range images {
		detections, err := s.extractor.ExtractFile(img.Path)
		if err != nil {
			log.Printf("recognition: WARNING - failed to process %s for student %s: %v",
				img.Path, student.StudentCode, err)
			continue
		}
		if len(detections) == 0 {
			log.Printf("recognition: no face found in %s for student %s, skipping",
				img.Path, student.StudentCode)
			continue
		}
		out = append(out, detections[0].Embedding)
	}
	return out
}

// Recognize matches every face in the image against the current gallery
// snapshot. Faces whose best match does not clear the label threshold are
// returned as Unknown with their confidence, never as an error. Deterministic
// for a fixed gallery and image.
func (s *RecognitionService) Recognize(imagePath string) ([]recognition.Match, error) {
	gallery := s.gallery.Load()
	if gallery == nil || gallery.Len() == 0 {
		return nil, ErrGalleryNotLoaded
	}

	detections, err := s.extractor.ExtractFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract faces: %w", err)
	}

	matches := make([]recognition.Match, 0, len(detections))
	for _, det := range detections {
		label, confidence := gallery.Match(det.Embedding)
		if confidence < s.labelThreshold {
			label = recognition.UnknownLabel
		}
		matches = append(matches, recognition.Match{
			X: det.X, Y: det.Y, W: det.W, H: det.H,
			Label:      label,
			Confidence: confidence,
		})
	}

	return matches, nil
}
