package checkpoint

import (
	"testing"

	"vkdump/pkg/vk"
)

func TestLoadMissingReturnsFresh(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	cp, err := m.Load(42)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cp.GroupID != 42 {
		t.Errorf("GroupID = %d, want 42", cp.GroupID)
	}
	if len(cp.Cursors) != 0 {
		t.Errorf("fresh checkpoint has %d cursors, want 0", len(cp.Cursors))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	cp, err := m.Load(42)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := m.Advance(cp, ScopeKey("wall", 0), vk.Cursor{Offset: 200}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if err := m.Advance(cp, ScopeKey("wall_comments", 17), vk.Cursor{Offset: 50, Done: true}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	loaded, err := NewManager(dir, nil).Load(42)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}

	if got := loaded.Cursor("wall"); got.Offset != 200 || got.Done {
		t.Errorf("wall cursor = %+v, want offset 200 not done", got)
	}
	if got := loaded.Cursor("wall_comments/17"); got.Offset != 50 || !got.Done {
		t.Errorf("wall_comments/17 cursor = %+v, want offset 50 done", got)
	}
}

func TestLoadOtherGroupStartsFresh(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	cp, _ := m.Load(42)
	if err := m.Advance(cp, "wall", vk.Cursor{Offset: 100}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	other, err := m.Load(43)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if other.GroupID != 43 {
		t.Errorf("GroupID = %d, want 43", other.GroupID)
	}
	if len(other.Cursors) != 0 {
		t.Errorf("cursors carried over across communities: %v", other.Cursors)
	}
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	cp, _ := m.Load(42)
	if err := m.Advance(cp, "wall", vk.Cursor{Offset: 200}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if err := m.Advance(cp, "wall", vk.Cursor{Offset: 100}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if got := cp.Cursor("wall").Offset; got != 200 {
		t.Errorf("cursor offset = %d, want 200", got)
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	cp, _ := m.Load(42)
	if err := m.Save(cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !m.Exists() {
		t.Fatal("checkpoint should exist after save")
	}

	if err := m.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if m.Exists() {
		t.Fatal("checkpoint should not exist after delete")
	}

	// Deleting a missing checkpoint is not an error.
	if err := m.Delete(); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestScopeKey(t *testing.T) {
	if got := ScopeKey("wall", 0); got != "wall" {
		t.Errorf("ScopeKey(wall, 0) = %q", got)
	}
	if got := ScopeKey("wall_comments", 17); got != "wall_comments/17" {
		t.Errorf("ScopeKey(wall_comments, 17) = %q", got)
	}
}
