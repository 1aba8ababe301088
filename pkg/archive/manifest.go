package archive

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Manifest records which entities are already committed to disk. It is
// rebuilt by scanning the archive tree at startup, so the archive's own
// contents are the resume state. Membership is append-only within a run.
type Manifest struct {
	entries map[string]bool
	mu      sync.RWMutex
}

// ScanManifest builds a manifest from an existing archive directory. A
// missing directory yields an empty manifest.
func ScanManifest(root string) (*Manifest, error) {
	m := &Manifest{entries: make(map[string]bool)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		m.entries[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Has reports whether an entity is already archived.
func (m *Manifest) Has(relPath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[relPath]
}

// Add records a committed entity. Never rolled back.
func (m *Manifest) Add(relPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[relPath] = true
}

// Len returns the number of archived entities.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CountPrefix counts archived entities whose key starts with prefix.
// Used for fast-skipping stages whose coverage already matches the
// vendor's reported total.
func (m *Manifest) CountPrefix(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}
