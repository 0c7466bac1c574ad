// Package blob stores file revision contents on the local filesystem.
//
// Every revision of a file is a separate blob named after the original file
// with the revision number spliced in before the extension: "songs/intro.txt"
// at revision 3 lives at "<root>/<service>/songs/intro.3.txt". Blobs are
// immutable once written; the metadata index decides which revision is
// current.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/versesync/versesync/pkg/sync/models"
)

// hashChunkSize is the read buffer used when hashing file contents.
const hashChunkSize = 8 * 1024

// Store manages revision blobs under a single root directory, with one
// subtree per service.
type Store struct {
	root string
}

// NewStore creates a blob store rooted at the given directory, creating the
// per-service subtrees if missing.
func NewStore(root string) (*Store, error) {
	for _, svc := range models.AllServices() {
		if err := os.MkdirAll(filepath.Join(root, string(svc)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// RevisionPath returns the absolute path of one revision blob. The relative
// path always uses forward slashes; the revision number goes before the file
// extension ("intro.txt" rev 3 -> "intro.3.txt"). Dotfiles such as
// ".gitignore" have no extension, so the revision goes at the end
// (".gitignore" rev 3 -> ".gitignore.3").
func (s *Store) RevisionPath(service models.ServiceType, relPath string, revision int) string {
	dir, name := path.Split(relPath)
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	revName := fmt.Sprintf("%s.%d%s", stem, revision, ext)
	return filepath.Join(s.root, string(service), filepath.FromSlash(dir), revName)
}

// WriteRevision streams r into the revision blob, creating parent
// directories as needed. The content is written to a temporary file in the
// destination directory and renamed into place, so a crash never leaves a
// half-written blob under the final name. Returns the SHA-256 hex digest and
// byte count of the written content.
func (s *Store) WriteRevision(service models.ServiceType, relPath string, revision int, r io.Reader) (hash string, size int64, err error) {
	dst := s.RevisionPath(service, relPath, revision)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		return "", 0, fmt.Errorf("failed to move blob into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// OpenRevision opens one revision blob for reading. The caller must close
// the returned file.
func (s *Store) OpenRevision(service models.ServiceType, relPath string, revision int) (*os.File, error) {
	f, err := os.Open(s.RevisionPath(service, relPath, revision))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrRevisionNotFound
		}
		return nil, err
	}
	return f, nil
}

// CopyRevision duplicates the blob at (relPath, from) to (relPath, to).
// Used when archiving the current revision before an overwrite or restore.
// Missing source blobs are not an error: tombstoned revisions have no blob.
func (s *Store) CopyRevision(service models.ServiceType, relPath string, from, to int) error {
	src, err := os.Open(s.RevisionPath(service, relPath, from))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	if _, _, err := s.WriteRevision(service, relPath, to, src); err != nil {
		return err
	}
	return nil
}

// MoveFileIntoRevision moves an already-staged file into place as a revision
// blob, hashing it on the way. Falls back to copy+remove when the staging
// area and storage root are on different filesystems.
func (s *Store) MoveFileIntoRevision(service models.ServiceType, relPath string, revision int, stagedPath string) (hash string, size int64, err error) {
	hash, size, err = HashFile(stagedPath)
	if err != nil {
		return "", 0, err
	}

	dst := s.RevisionPath(service, relPath, revision)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := os.Rename(stagedPath, dst); err == nil {
		return hash, size, nil
	}

	src, err := os.Open(stagedPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	if _, _, err := s.WriteRevision(service, relPath, revision, src); err != nil {
		return "", 0, err
	}
	os.Remove(stagedPath)
	return hash, size, nil
}

// RemoveRevision deletes one revision blob. Missing blobs are ignored:
// tombstoned revisions never had one.
func (s *Store) RemoveRevision(service models.ServiceType, relPath string, revision int) error {
	err := os.Remove(s.RevisionPath(service, relPath, revision))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HashFile computes the SHA-256 hex digest and size of a file, reading in
// fixed-size chunks so large files never load fully into memory.
func HashFile(name string) (hash string, size int64, err error) {
	f, err := os.Open(name)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	size, err = io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
