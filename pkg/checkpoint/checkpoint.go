package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vkdump/pkg/logger"
	"vkdump/pkg/vk"
)

// Checkpoint holds the saved pagination cursors of a dump, keyed by
// "<stage>" or "<stage>/<parent id>" for nested scopes. Cursors only
// ever advance, so resuming from a saved checkpoint never skips a page.
type Checkpoint struct {
	GroupID   int64                `json:"group_id"`
	Cursors   map[string]vk.Cursor `json:"cursors"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Version   int                  `json:"version"`
}

// ScopeKey builds a cursor key for a stage and optional parent scope.
func ScopeKey(stage string, parentID int64) string {
	if parentID == 0 {
		return stage
	}
	return fmt.Sprintf("%s/%d", stage, parentID)
}

// Cursor returns the saved cursor for a scope, zero when absent.
func (c *Checkpoint) Cursor(key string) vk.Cursor {
	return c.Cursors[key]
}

// Manager persists the checkpoint file inside the archive directory.
// The checkpoint is an optimization: deleting it only costs refetches,
// because the manifest skip still prevents duplicate writes.
type Manager struct {
	path   string
	logger logger.Logger
}

const checkpointFile = "cursors.json"

// NewManager creates a checkpoint manager for the given archive root.
func NewManager(archiveRoot string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		path:   filepath.Join(archiveRoot, checkpointFile),
		logger: log,
	}
}

// Load reads the checkpoint, returning a fresh one when none exists.
func (m *Manager) Load(groupID int64) (*Checkpoint, error) {
	file, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Checkpoint{
				GroupID:   groupID,
				Cursors:   make(map[string]vk.Cursor),
				CreatedAt: time.Now(),
				Version:   1,
			}, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	if cp.GroupID != groupID {
		// A checkpoint from a different community is useless here.
		m.logger.WarnWithFields("checkpoint belongs to another community, starting fresh", map[string]interface{}{
			"checkpoint_group": cp.GroupID,
			"group":            groupID,
		})
		return &Checkpoint{
			GroupID:   groupID,
			Cursors:   make(map[string]vk.Cursor),
			CreatedAt: time.Now(),
			Version:   1,
		}, nil
	}

	if cp.Cursors == nil {
		cp.Cursors = make(map[string]vk.Cursor)
	}

	m.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"cursors":    len(cp.Cursors),
		"updated_at": cp.UpdatedAt,
	})

	return &cp, nil
}

// Advance records a new cursor for a scope and saves the checkpoint.
// Called only after the corresponding page's writes fully completed, so
// an interrupt can never persist a cursor ahead of the archive.
func (m *Manager) Advance(cp *Checkpoint, key string, cursor vk.Cursor) error {
	if prev, ok := cp.Cursors[key]; ok && cursor.Offset < prev.Offset {
		// Cursors are monotonic per scope.
		return nil
	}
	cp.Cursors[key] = cursor
	return m.Save(cp)
}

// Save writes the checkpoint atomically.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	return nil
}

// Delete removes the checkpoint file.
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
