package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versesync/versesync/pkg/sync/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewStore_CreatesServiceDirectories(t *testing.T) {
	root := t.TempDir()
	_, err := NewStore(root)
	require.NoError(t, err)

	for _, svc := range models.AllServices() {
		info, err := os.Stat(filepath.Join(root, string(svc)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestRevisionPath(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		relPath  string
		revision int
		want     string
	}{
		{"intro.txt", 3, "intro.3.txt"},
		{"songs/intro.txt", 1, filepath.Join("songs", "intro.1.txt")},
		{"README", 2, "README.2"},
		{"media/track.final.wav", 5, filepath.Join("media", "track.final.5.wav")},
		// Dotfiles have no extension, so the revision goes at the end
		{".gitignore", 3, ".gitignore.3"},
		{"conf/.env", 1, filepath.Join("conf", ".env.1")},
		{".config.yml", 2, ".config.2.yml"},
	}

	for _, tt := range tests {
		got := s.RevisionPath(models.ServiceContemporary, tt.relPath, tt.revision)
		want := filepath.Join(s.Root(), string(models.ServiceContemporary), tt.want)
		assert.Equal(t, want, got, "path for %s rev %d", tt.relPath, tt.revision)
	}
}

func TestWriteRevision(t *testing.T) {
	s := newTestStore(t)
	content := "verse one, verse two"

	hash, size, err := s.WriteRevision(models.ServiceTraditional, "songs/opening.txt", 1, strings.NewReader(content))
	require.NoError(t, err)

	expected := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(expected[:]), hash)
	assert.Equal(t, int64(len(content)), size)

	f, err := s.OpenRevision(models.ServiceTraditional, "songs/opening.txt", 1)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestWriteRevision_NoTempLeftovers(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.WriteRevision(models.ServiceContemporary, "a.txt", 1, strings.NewReader("x"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(s.Root(), string(models.ServiceContemporary)))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".upload-"), "temp file left behind: %s", e.Name())
	}
}

func TestOpenRevision_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.OpenRevision(models.ServiceContemporary, "nope.txt", 1)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)
}

func TestCopyRevision(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.WriteRevision(models.ServiceContemporary, "a.txt", 2, strings.NewReader("current"))
	require.NoError(t, err)

	require.NoError(t, s.CopyRevision(models.ServiceContemporary, "a.txt", 2, 3))

	f, err := s.OpenRevision(models.ServiceContemporary, "a.txt", 3)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "current", string(data))
}

func TestCopyRevision_MissingSourceIsNoop(t *testing.T) {
	s := newTestStore(t)

	// Tombstoned revisions have no blob; archiving one must not fail
	assert.NoError(t, s.CopyRevision(models.ServiceContemporary, "gone.txt", 1, 2))

	_, err := s.OpenRevision(models.ServiceContemporary, "gone.txt", 2)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)
}

func TestMoveFileIntoRevision(t *testing.T) {
	s := newTestStore(t)

	staged := filepath.Join(t.TempDir(), "staged.txt")
	require.NoError(t, os.WriteFile(staged, []byte("staged content"), 0644))

	hash, size, err := s.MoveFileIntoRevision(models.ServiceContemporary, "songs/new.txt", 1, staged)
	require.NoError(t, err)

	expected := sha256.Sum256([]byte("staged content"))
	assert.Equal(t, hex.EncodeToString(expected[:]), hash)
	assert.Equal(t, int64(len("staged content")), size)

	// Staged file is gone, blob exists
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))

	f, err := s.OpenRevision(models.ServiceContemporary, "songs/new.txt", 1)
	require.NoError(t, err)
	f.Close()
}

func TestRemoveRevision(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.WriteRevision(models.ServiceContemporary, "a.txt", 1, strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveRevision(models.ServiceContemporary, "a.txt", 1))
	_, err = s.OpenRevision(models.ServiceContemporary, "a.txt", 1)
	assert.ErrorIs(t, err, models.ErrRevisionNotFound)

	// Removing again is not an error
	assert.NoError(t, s.RemoveRevision(models.ServiceContemporary, "a.txt", 1))
}

func TestHashFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "f.bin")
	content := strings.Repeat("versesync", 4096)
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))

	hash, size, err := HashFile(name)
	require.NoError(t, err)

	expected := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(expected[:]), hash)
	assert.Equal(t, int64(len(content)), size)
}
