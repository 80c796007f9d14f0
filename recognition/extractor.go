package recognition

import (
	"errors"
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

// ErrModelsNotLoaded is returned when extraction is attempted without both
// networks loaded.
var ErrModelsNotLoaded = errors.New("face detection or embedding model not loaded")

// Extractor combines the detector and embedder into the single operation the
// rest of the system consumes: image in, embedded face regions out.
type Extractor struct {
	detector *DNNFaceDetector
	embedder *Embedder

	// MaxWorkingDimension caps the longest image side before detection, purely
	// for latency. Detected regions are rescaled back to original coordinates.
	MaxWorkingDimension int
}

func NewExtractor(detector *DNNFaceDetector, embedder *Embedder, maxWorkingDimension int) *Extractor {
	if maxWorkingDimension <= 0 {
		maxWorkingDimension = 1024
	}
	return &Extractor{
		detector:            detector,
		embedder:            embedder,
		MaxWorkingDimension: maxWorkingDimension,
	}
}

// Enabled reports whether both networks loaded successfully.
func (e *Extractor) Enabled() bool {
	return e != nil &&
		e.detector != nil && e.detector.Enabled &&
		e.embedder != nil && e.embedder.Enabled
}

func (e *Extractor) Close() {
	if e == nil {
		return
	}
	e.detector.Close()
	e.embedder.Close()
}

// ExtractFile reads an image from disk and returns every detected face with
// its embedding, regions in original image coordinates. Zero faces is an
// empty slice, not an error. Faces whose embedding could not be computed are
// dropped with a warning since they cannot be matched.
func (e *Extractor) ExtractFile(imagePath string) ([]Detection, error) {
	if !e.Enabled() {
		return nil, ErrModelsNotLoaded
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image file: %s", imagePath)
	}
	defer img.Close()

	return e.extract(img)
}

func (e *Extractor) extract(img gocv.Mat) ([]Detection, error) {
	working := img
	scale := 1.0

	longest := img.Cols()
	if img.Rows() > longest {
		longest = img.Rows()
	}
	if longest > e.MaxWorkingDimension {
		scale = float64(e.MaxWorkingDimension) / float64(longest)
		resized := gocv.NewMat()
		gocv.Resize(img, &resized, image.Pt(0, 0), scale, scale, gocv.InterpolationArea)
		defer resized.Close()
		working = resized
	}

	detections := e.detector.DetectFaces(working)

	results := make([]Detection, 0, len(detections))
	for i, det := range detections {
		rect := clampRect(image.Rect(det.X, det.Y, det.X+det.W, det.Y+det.H), working.Cols(), working.Rows())
		if rect.Empty() {
			continue
		}

		faceRegion := working.Region(rect)
		embedding := e.embedder.ExtractEmbedding(faceRegion)
		faceRegion.Close()

		if embedding == nil {
			log.Printf("recognition: WARNING - failed to extract embedding for face %d, dropping", i)
			continue
		}

		// rescale region back to original coordinates
		if scale != 1.0 {
			det.X = int(float64(det.X) / scale)
			det.Y = int(float64(det.Y) / scale)
			det.W = int(float64(det.W) / scale)
			det.H = int(float64(det.H) / scale)
		}
		det.Embedding = embedding
		results = append(results, det)
	}

	return results, nil
}

func clampRect(r image.Rectangle, maxW, maxH int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, maxW, maxH))
}
