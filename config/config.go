package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultStudentFacesSubDir = "student_faces"
	DefaultSnapshotsSubDir    = "attendance_snapshots"
	DefaultModelsSubDir       = "trained_models"

	GalleryFileName = "face_gallery.bin"
)

const (
	defaultJobQueueSize  = 100
	defaultNumJobWorkers = 2

	defaultMaxWorkingDimension = 1024
	defaultMinImagesPerStudent = 3
	defaultMinTotalEmbeddings  = 3

	defaultLabelThreshold      = 0.60
	defaultMinRecordConfidence = 0.80

	defaultAbsentDeadlineHours = 8
)

type Config struct {
	// database path
	DatabasePath string

	// upload storage configuration
	UploadStoragePath string // primary root for uploaded assets
	StudentFacesPath  string // full-calculated path for enrollment images
	SnapshotsPath     string // full-calculated path for check-in snapshots
	ModelsPath        string // full-calculated path for the persisted gallery
	GalleryPath       string // full path of the gallery blob inside ModelsPath

	// face detection / embedding model paths (DNN)
	FaceDNNNetConfigPath string
	FaceDNNNetModelPath  string
	FaceEmbedModelPath   string
	FaceEmbedModelName   string

	// extraction settings
	MaxWorkingDimension int

	// gallery training settings
	MinImagesPerStudent int
	MinTotalEmbeddings  int

	// two independent thresholds: LabelThreshold decides whether a match gets a
	// label at all, MinRecordConfidence gates the write into attendance
	LabelThreshold      float64
	MinRecordConfidence float64

	// absentee sweep settings
	AbsentDeadlineHours int

	// worker settings
	JobQueueSize  int
	NumJobWorkers int
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "attendance.db")

	uploadStorage := getEnvOrDefault("UPLOAD_STORAGE_PATH", filepath.Join(".", "uploads"))
	absUploadStorage, err := filepath.Abs(uploadStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for upload storage '%s': %w", uploadStorage, err)
	}

	facesSubDir := getEnvOrDefault("STUDENT_FACES_SUBDIR", DefaultStudentFacesSubDir)
	absStudentFacesPath := filepath.Join(absUploadStorage, facesSubDir)

	snapshotsSubDir := getEnvOrDefault("SNAPSHOTS_SUBDIR", DefaultSnapshotsSubDir)
	absSnapshotsPath := filepath.Join(absUploadStorage, snapshotsSubDir)

	modelsSubDir := getEnvOrDefault("MODELS_SUBDIR", DefaultModelsSubDir)
	absModelsPath := filepath.Join(absUploadStorage, modelsSubDir)

	faceDNNConfig := getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt")
	faceDNNModel := getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel")
	faceEmbedModel := getEnvOrDefault("FACE_EMBED_MODEL_PATH", "./models/arcface.onnx")
	faceEmbedName := getEnvOrDefault("FACE_EMBED_MODEL_NAME", "arcface")

	cfg := Config{
		DatabasePath:         dbPath,
		UploadStoragePath:    absUploadStorage,
		StudentFacesPath:     absStudentFacesPath,
		SnapshotsPath:        absSnapshotsPath,
		ModelsPath:           absModelsPath,
		GalleryPath:          filepath.Join(absModelsPath, GalleryFileName),
		FaceDNNNetConfigPath: faceDNNConfig,
		FaceDNNNetModelPath:  faceDNNModel,
		FaceEmbedModelPath:   faceEmbedModel,
		FaceEmbedModelName:   faceEmbedName,
		MaxWorkingDimension:  getEnvIntOrDefault("MAX_WORKING_DIMENSION", defaultMaxWorkingDimension),
		MinImagesPerStudent:  getEnvIntOrDefault("MIN_IMAGES_PER_STUDENT", defaultMinImagesPerStudent),
		MinTotalEmbeddings:   getEnvIntOrDefault("MIN_TOTAL_EMBEDDINGS", defaultMinTotalEmbeddings),
		LabelThreshold:       getEnvFloatOrDefault("LABEL_THRESHOLD", defaultLabelThreshold),
		MinRecordConfidence:  getEnvFloatOrDefault("MIN_RECORD_CONFIDENCE", defaultMinRecordConfidence),
		AbsentDeadlineHours:  getEnvIntOrDefault("ABSENT_DEADLINE_HOURS", defaultAbsentDeadlineHours),
		JobQueueSize:         getEnvIntOrDefault("JOB_QUEUE_SIZE", defaultJobQueueSize),
		NumJobWorkers:        getEnvIntOrDefault("NUM_JOB_WORKERS", defaultNumJobWorkers),
	}

	return cfg, nil
}
