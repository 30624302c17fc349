package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patternguard/console/internal/models"
	"github.com/zeebo/blake3"
)

// ErrNotFound is returned for names the store does not hold.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for local artifact storage.
type Store interface {
	Save(name string, r io.Reader) (*models.SavedFile, error)
	Get(name string) (*models.SavedFile, error)
	List(limit int) ([]*models.SavedFile, error)
	Delete(name string) error
}

// LocalStore implements Store on a single directory. Files appear under
// their final name only once completely written.
type LocalStore struct {
	mu          sync.RWMutex
	downloadDir string
	files       map[string]*models.SavedFile
	now         func() time.Time
}

// tempPrefix marks files still being written.
const tempPrefix = ".partial-"

// NewLocalStore opens downloadDir, creating it if needed, and indexes the
// files already in it. Leftover partial files from an interrupted save
// are removed.
func NewLocalStore(downloadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	s := &LocalStore{
		downloadDir: downloadDir,
		files:       make(map[string]*models.SavedFile),
		now:         time.Now,
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) index() error {
	entries, err := os.ReadDir(s.downloadDir)
	if err != nil {
		return fmt.Errorf("reading download directory: %w", err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.downloadDir, e.Name())
		if strings.HasPrefix(e.Name(), tempPrefix) {
			os.Remove(path)
			continue
		}

		fi, err := e.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		digest, err := fileDigest(path)
		if err != nil {
			return err
		}
		s.files[e.Name()] = &models.SavedFile{
			Name:    e.Name(),
			Path:    path,
			Size:    fi.Size(),
			Digest:  digest,
			SavedAt: fi.ModTime(),
		}
	}
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Dir returns the download directory.
func (s *LocalStore) Dir() string {
	return s.downloadDir
}

// Save copies r into the download directory under name, replacing any
// existing file. On failure nothing is left behind.
func (s *LocalStore) Save(name string, r io.Reader) (*models.SavedFile, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.downloadDir, tempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	// CreateTemp opens with 0600; saved builds are ordinary files.
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("closing file: %w", err)
	}

	path := filepath.Join(s.downloadDir, clean)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("moving file into place: %w", err)
	}

	info := &models.SavedFile{
		Name:    clean,
		Path:    path,
		Size:    size,
		Digest:  hex.EncodeToString(hasher.Sum(nil)),
		SavedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[clean] = info

	return info, nil
}

// Get retrieves metadata for a file in the download directory.
func (s *LocalStore) Get(name string) (*models.SavedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[filepath.Base(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return info, nil
}

// List returns the most recently saved files, newest first.
func (s *LocalStore) List(limit int) ([]*models.SavedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.SavedFile
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].SavedAt.After(list[j].SavedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a saved file.
func (s *LocalStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := filepath.Base(name)
	info, ok := s.files[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, key)
	return nil
}

// cleanName strips any directory part so a server supplied name cannot
// escape the download directory.
func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if strings.HasPrefix(base, tempPrefix) {
		return "", fmt.Errorf("reserved file name %q", name)
	}
	return base, nil
}
