package services

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
	"github.com/huyng1801/diem-danh/recognition"
)

// stubExtractor returns canned detections per image path, standing in for the
// gocv-backed extractor.
type stubExtractor struct {
	detections map[string][]recognition.Detection
	errs       map[string]error
}

func (s *stubExtractor) ExtractFile(imagePath string) ([]recognition.Detection, error) {
	if err, ok := s.errs[imagePath]; ok {
		return nil, err
	}
	return s.detections[imagePath], nil
}

// stubStudentRepo serves a fixed enrollment set; only ListActiveWithImages is
// exercised by the gallery builder. The mutex keeps the stub safe for tests
// that rebuild while other goroutines recognize.
type stubStudentRepo struct {
	mu       sync.Mutex
	students []models.Student
}

func (s *stubStudentRepo) setStudents(students ...models.Student) {
	s.mu.Lock()
	s.students = students
	s.mu.Unlock()
}

func (s *stubStudentRepo) Create(*models.Student) error          { return nil }
func (s *stubStudentRepo) Update(*models.Student) error          { return nil }
func (s *stubStudentRepo) Deactivate(uint) error                 { return nil }
func (s *stubStudentRepo) GetByID(uint) (*models.Student, error) { return nil, gorm.ErrRecordNotFound }
func (s *stubStudentRepo) GetByCode(string) (*models.Student, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubStudentRepo) ListByClassroom(uint) ([]models.Student, error)       { return nil, nil }
func (s *stubStudentRepo) ListActiveByClassroom(uint) ([]models.Student, error) { return nil, nil }
func (s *stubStudentRepo) CountActiveByClassroom(uint) (int64, error)           { return 0, nil }
func (s *stubStudentRepo) ListActiveWithImages() ([]models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.students, nil
}

func enrolledStudent(code, name string, paths ...string) models.Student {
	student := models.Student{StudentCode: code, FullName: name, IsActive: true}
	for _, p := range paths {
		student.Images = append(student.Images, models.StudentImage{Path: p, FileName: filepath.Base(p)})
	}
	return student
}

func det(embedding ...float32) recognition.Detection {
	return recognition.Detection{Embedding: embedding}
}

func newTestService(t *testing.T, extractor *stubExtractor, repo *stubStudentRepo) (*RecognitionService, string) {
	t.Helper()
	galleryPath := filepath.Join(t.TempDir(), "face_gallery.bin")
	svc := NewRecognitionService(extractor, repo, galleryPath, 0.60, 3, 3)
	return svc, galleryPath
}

func TestBuildGalleryTrainsAndReportsFailures(t *testing.T) {
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"a1.jpg": {det(1, 0)},
		"a2.jpg": {det(1, 0)},
		"a3.jpg": {det(1, 0)},
	}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg"),
		enrolledStudent("SV002", "Tran Thi B", "b1.jpg"),
	}}
	svc, galleryPath := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalIdentities)
	assert.Equal(t, 1, result.TrainedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 3, result.TotalEmbeddings)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "SV002", result.Failed[0].StudentCode)
	assert.Contains(t, result.Failed[0].Reason, "not enough enrollment images")

	stats := svc.GalleryStats()
	assert.True(t, stats.Loaded)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 1, stats.Identities)

	// the blob is persisted and loadable by a fresh service
	_, err = os.Stat(galleryPath)
	require.NoError(t, err)

	fresh := NewRecognitionService(extractor, repo, galleryPath, 0.60, 3, 3)
	require.NoError(t, fresh.LoadGallery())
	assert.Equal(t, 3, fresh.GalleryStats().TotalEntries)
}

func TestBuildGalleryNoUsableFaces(t *testing.T) {
	// enough raw images, but detection finds nothing in any of them
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg"),
	}}
	svc, _ := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.TrainedCount)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, "no usable face")

	_, err = svc.Recognize("query.jpg")
	assert.ErrorIs(t, err, ErrGalleryNotLoaded)
}

func TestBuildGalleryRejectionKeepsOldGallery(t *testing.T) {
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"a1.jpg": {det(1, 0)},
		"a2.jpg": {det(1, 0)},
		"a3.jpg": {det(1, 0)},
	}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg"),
	}}
	svc, _ := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)
	require.True(t, result.Success)

	// two of the three images now fail to extract, dropping the batch below
	// the minimum; the rebuild must be rejected and the old snapshot kept
	extractor.errs = map[string]error{
		"a2.jpg": errors.New("read failed"),
		"a3.jpg": errors.New("read failed"),
	}

	result, err = svc.BuildGallery()
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "training rejected")

	stats := svc.GalleryStats()
	assert.True(t, stats.Loaded)
	assert.Equal(t, 3, stats.TotalEntries)
}

func TestBuildGalleryOrdersImagesNaturally(t *testing.T) {
	// img10 sorts after img2 in natural order, unlike lexicographic order
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"img1.jpg":  {det(0.1, 0)},
		"img2.jpg":  {det(0.2, 0)},
		"img10.jpg": {det(0.3, 0)},
	}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "img10.jpg", "img1.jpg", "img2.jpg"),
	}}
	svc, galleryPath := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)
	require.True(t, result.Success)

	g, err := recognition.LoadGalleryFile(galleryPath)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	assert.Equal(t, [][]float32{{0.1, 0}, {0.2, 0}, {0.3, 0}}, g.Embeddings)
}

func TestRecognizeLabelsAndUnknown(t *testing.T) {
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"a1.jpg": {det(1, 0)},
		"a2.jpg": {det(1, 0)},
		"a3.jpg": {det(1, 0)},
	}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg"),
	}}
	svc, _ := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)
	require.True(t, result.Success)

	extractor.detections["query.jpg"] = []recognition.Detection{
		det(1, 0),
		det(0, 1), // distance sqrt(2), confidence clamps to 0
	}

	matches, err := svc.Recognize("query.jpg")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "SV001", matches[0].Label)
	assert.InDelta(t, 1.0, matches[0].Confidence, 1e-9)

	assert.Equal(t, recognition.UnknownLabel, matches[1].Label)
	assert.Equal(t, 0.0, matches[1].Confidence)

	// same gallery, same image, same verdicts
	again, err := svc.Recognize("query.jpg")
	require.NoError(t, err)
	assert.Equal(t, matches, again)
}

func TestRecognizeNoFaces(t *testing.T) {
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"a1.jpg": {det(1, 0)},
		"a2.jpg": {det(1, 0)},
		"a3.jpg": {det(1, 0)},
	}}
	repo := &stubStudentRepo{students: []models.Student{
		enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg"),
	}}
	svc, _ := newTestService(t, extractor, repo)

	_, err := svc.BuildGallery()
	require.NoError(t, err)

	matches, err := svc.Recognize("empty.jpg")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRecognizeDuringRebuildSeesWholeSnapshot(t *testing.T) {
	// two distinguishable galleries: one where only SV001's embedding is
	// known, one where only SV002's is. A query with both faces must resolve
	// entirely against one of them; a split verdict means a torn snapshot.
	extractor := &stubExtractor{detections: map[string][]recognition.Detection{
		"a1.jpg": {det(1, 0)}, "a2.jpg": {det(1, 0)}, "a3.jpg": {det(1, 0)},
		"b1.jpg": {det(0, 1)}, "b2.jpg": {det(0, 1)}, "b3.jpg": {det(0, 1)},
		"query.jpg": {det(1, 0), det(0, 1)},
	}}
	studentA := enrolledStudent("SV001", "Nguyen Van A", "a1.jpg", "a2.jpg", "a3.jpg")
	studentB := enrolledStudent("SV002", "Tran Thi B", "b1.jpg", "b2.jpg", "b3.jpg")

	repo := &stubStudentRepo{students: []models.Student{studentA}}
	svc, _ := newTestService(t, extractor, repo)

	result, err := svc.BuildGallery()
	require.NoError(t, err)
	require.True(t, result.Success)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				matches, err := svc.Recognize("query.jpg")
				if err != nil {
					t.Errorf("Recognize failed during rebuild: %v", err)
					return
				}
				if len(matches) != 2 {
					t.Errorf("expected 2 matches, got %d", len(matches))
					return
				}

				fromA := matches[0].Label == "SV001" && matches[1].Label == recognition.UnknownLabel
				fromB := matches[0].Label == recognition.UnknownLabel && matches[1].Label == "SV002"
				if !fromA && !fromB {
					t.Errorf("verdicts span two snapshots: %q / %q", matches[0].Label, matches[1].Label)
					return
				}
			}
		}()
	}

	for i := 0; i < 25; i++ {
		if i%2 == 0 {
			repo.setStudents(studentB)
		} else {
			repo.setStudents(studentA)
		}
		result, err := svc.BuildGallery()
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	close(stop)
	wg.Wait()
}

func TestLoadGalleryCorruptFile(t *testing.T) {
	svc, galleryPath := newTestService(t, &stubExtractor{}, &stubStudentRepo{})
	require.NoError(t, os.WriteFile(galleryPath, []byte("not a gallery blob"), 0644))

	// a bad blob is an error, but the service stays usable without a gallery
	err := svc.LoadGallery()
	require.Error(t, err)
	assert.ErrorIs(t, err, recognition.ErrCorruptGallery)
	assert.False(t, svc.GalleryStats().Loaded)

	_, err = svc.Recognize("query.jpg")
	assert.ErrorIs(t, err, ErrGalleryNotLoaded)
}

func TestLoadGalleryMissingFile(t *testing.T) {
	svc, _ := newTestService(t, &stubExtractor{}, &stubStudentRepo{})

	require.NoError(t, svc.LoadGallery())
	assert.False(t, svc.GalleryStats().Loaded)
}
