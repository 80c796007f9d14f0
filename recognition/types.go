package recognition

// UnknownLabel is assigned when no gallery entry clears the label threshold.
const UnknownLabel = "Unknown"

// Detection is one face found in an image. Coordinates are always in the
// original image's coordinate space, even when detection ran on a downscaled
// working copy.
type Detection struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	W         int       `json:"w"`
	H         int       `json:"h"`
	Score     float32   `json:"score"` // detector confidence, not match confidence
	Embedding []float32 `json:"-"`     // L2-normalized embedding vector
}

// Match pairs a detection with the gallery verdict for it.
type Match struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Label      string  `json:"label"` // student code, or UnknownLabel
	Confidence float64 `json:"confidence"`
}
