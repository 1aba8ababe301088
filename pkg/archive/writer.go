package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	errs "vkdump/pkg/errors"
	"vkdump/pkg/logger"
)

// Writer persists fetched records into the archive tree. Writes are
// idempotent: an entity already present in the manifest is skipped
// without touching the disk, and new files land via temp-file + rename
// so an interrupt never leaves a torn record behind.
type Writer struct {
	root     string
	manifest *Manifest
	logger   logger.Logger
}

// NewWriter opens (or creates) an archive rooted at root and scans its
// existing contents into the manifest.
func NewWriter(root string, log logger.Logger) (*Writer, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	manifest, err := ScanManifest(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan existing archive: %w", err)
	}

	if manifest.Len() > 0 {
		log.InfoWithFields("resuming into existing archive", map[string]interface{}{
			"root":     root,
			"archived": manifest.Len(),
		})
	}

	return &Writer{root: root, manifest: manifest, logger: log}, nil
}

// Root returns the archive root directory.
func (w *Writer) Root() string {
	return w.root
}

// Manifest returns the archive manifest.
func (w *Writer) Manifest() *Manifest {
	return w.manifest
}

// Has reports whether the entity at relPath is already archived.
func (w *Writer) Has(relPath string) bool {
	return w.manifest.Has(relPath)
}

// Write persists one record at relPath. Presence in the manifest is
// sufficient to skip; content is not re-verified byte for byte.
func (w *Writer) Write(relPath string, payload interface{}) error {
	if w.manifest.Has(relPath) {
		w.logger.DebugWithFields("already archived, skipping", map[string]interface{}{
			"path": relPath,
		})
		return nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errs.New(errs.KindIO, 0, "failed to encode %s: %v", relPath, err)
	}

	if err := w.writeFileAtomic(relPath, data); err != nil {
		return err
	}

	w.manifest.Add(relPath)
	return nil
}

// WriteRaw persists an already-encoded payload, bypassing the manifest
// skip. Used for run-level reports that are regenerated each run.
func (w *Writer) WriteRaw(relPath string, data []byte) error {
	return w.writeFileAtomic(relPath, data)
}

func (w *Writer) writeFileAtomic(relPath string, data []byte) error {
	absPath := filepath.Join(w.root, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return errs.New(errs.KindIO, 0, "failed to create directory for %s: %v", relPath, err)
	}

	tempPath := absPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		os.Remove(tempPath)
		return errs.New(errs.KindIO, 0, "failed to write %s: %v", relPath, err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return errs.New(errs.KindIO, 0, "failed to commit %s: %v", relPath, err)
	}

	return nil
}
