package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Profile is a small key/value store scoped to the local user profile.
type Profile interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// FileProfile persists its entries as a single msgpack document.
// The whole map is rewritten on every change.
type FileProfile struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
}

// OpenFileProfile loads the profile at path, starting empty when the file
// does not exist yet.
func OpenFileProfile(path string) (*FileProfile, error) {
	p := &FileProfile{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if len(data) == 0 {
		return p, nil
	}
	if err := msgpack.Unmarshal(data, &p.entries); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", path, err)
	}
	if p.entries == nil {
		p.entries = make(map[string]string)
	}
	return p, nil
}

// Path returns the profile file location.
func (p *FileProfile) Path() string {
	return p.path
}

func (p *FileProfile) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.entries[key]
	return v, ok
}

func (p *FileProfile) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.entries[key]
	p.entries[key] = value
	if err := p.flush(); err != nil {
		if had {
			p.entries[key] = prev
		} else {
			delete(p.entries, key)
		}
		return err
	}
	return nil
}

func (p *FileProfile) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, had := p.entries[key]
	if !had {
		return nil
	}
	delete(p.entries, key)
	if err := p.flush(); err != nil {
		p.entries[key] = prev
		return err
	}
	return nil
}

// flush writes the map to a temp file and renames it over the profile.
// Caller holds p.mu.
func (p *FileProfile) flush() error {
	data, err := msgpack.Marshal(p.entries)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*")
	if err != nil {
		return fmt.Errorf("creating profile temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing profile: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("securing profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing profile: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing profile: %w", err)
	}
	return nil
}

// MemoryProfile keeps entries in process memory only.
type MemoryProfile struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryProfile creates an empty in-memory profile.
func NewMemoryProfile() *MemoryProfile {
	return &MemoryProfile{entries: make(map[string]string)}
}

func (p *MemoryProfile) Get(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.entries[key]
	return v, ok
}

func (p *MemoryProfile) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = value
	return nil
}

func (p *MemoryProfile) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
	return nil
}
