package uploads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir(), map[AssetType]string{
		AssetTypeStudentFace: "student_faces",
		AssetTypeSnapshot:    "attendance_snapshots",
	})
	require.NoError(t, err)
	return store
}

func TestLocalStorageSave(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save(AssetTypeStudentFace, "SV001", "portrait.JPG", strings.NewReader("image-bytes"))
	require.NoError(t, err)

	// stored under the student's directory, UUID name, original extension kept
	assert.Contains(t, path, filepath.Join("student_faces", "SV001"))
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	// two saves of the same hint never collide
	other, err := store.Save(AssetTypeStudentFace, "SV001", "portrait.JPG", strings.NewReader("x"))
	require.NoError(t, err)
	assert.NotEqual(t, path, other)
}

func TestLocalStorageSaveRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeStudentFace, "../../etc", "f.jpg", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStorageUnconfiguredAssetType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeModel, "", "g.bin", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStorageGetAndDeleteStayInsideRoot(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save(AssetTypeSnapshot, "", "cam.png", strings.NewReader("snap"))
	require.NoError(t, err)

	f, info, err := store.Get(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
	require.NoError(t, f.Close())

	_, _, err = store.Get("/etc/passwd")
	assert.Error(t, err)
	assert.Error(t, store.Delete("/etc/passwd"))

	require.NoError(t, store.Delete(path))
	_, _, err = store.Get(path)
	assert.Error(t, err)
}
