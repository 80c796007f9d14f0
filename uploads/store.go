package uploads

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type AssetType string

const (
	AssetTypeStudentFace AssetType = "student_face"
	AssetTypeSnapshot    AssetType = "snapshot"
	AssetTypeModel       AssetType = "model"
)

// Store defines the interface for saving, retrieving, and deleting uploaded
// assets. It is the narrow surface the attendance core sees of the on-disk
// upload directories.
type Store interface {
	// Save stores data under the asset type's directory, optionally below
	// relativeDirHint (e.g. a student code). The stored filename keeps the
	// hint's extension but gets a generated UUID name. Returns the absolute
	// path used.
	Save(assetType AssetType, relativeDirHint string, filenameHint string, data io.Reader) (string, error)
	// Get retrieves a reader for an asset
	Get(fullPath string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes an asset
	Delete(fullPath string) error
	// EnsureDir makes sure a specific asset type directory exists
	EnsureDir(assetType AssetType) (string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string
	subDirMap       map[AssetType]string
	resolvedPathMap map[AssetType]string
}

// NewLocalStorage creates a new local filesystem store rooted at basePath.
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !strings.HasPrefix(filepath.Clean(fullPath), absBasePath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolvedPaths[assetType] = fullPath
	}

	log.Printf("uploads: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath:        absBasePath,
		subDirMap:       subDirs,
		resolvedPathMap: resolvedPaths,
	}, nil
}

func (ls *LocalStorage) getAssetTypeDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' not configured", assetType)
	}
	return dirPath, nil
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath, err := ls.getAssetTypeDir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

// Save writes data below the asset type directory with a UUID filename,
// keeping the extension of filenameHint.
func (ls *LocalStorage) Save(assetType AssetType, relativeDirHint string, filenameHint string, data io.Reader) (string, error) {
	baseDir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}

	targetDir := baseDir
	if relativeDirHint != "" {
		targetDir = filepath.Join(baseDir, relativeDirHint)
		if !strings.HasPrefix(filepath.Clean(targetDir), baseDir) {
			return "", fmt.Errorf("directory hint '%s' resolves outside asset directory", relativeDirHint)
		}
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory '%s': %w", targetDir, err)
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate filename: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filenameHint))
	if ext == "" {
		ext = ".jpg"
	}
	fullPath := filepath.Join(targetDir, id.String()+ext)

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file '%s': %w", fullPath, err)
	}

	return fullPath, nil
}

// Get retrieves a reader for an asset
func (ls *LocalStorage) Get(fullPath string) (io.ReadCloser, os.FileInfo, error) {
	if !strings.HasPrefix(filepath.Clean(fullPath), ls.basePath) {
		return nil, nil, fmt.Errorf("path '%s' is outside the storage root", fullPath)
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Delete removes an asset
func (ls *LocalStorage) Delete(fullPath string) error {
	if !strings.HasPrefix(filepath.Clean(fullPath), ls.basePath) {
		return fmt.Errorf("path '%s' is outside the storage root", fullPath)
	}
	return os.Remove(fullPath)
}
