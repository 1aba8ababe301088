package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndSkip(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, nil)
	require.NoError(t, err)

	path := PostPath(42)
	require.NoError(t, w.Write(path, map[string]interface{}{"id": 42, "text": "hello"}))
	assert.True(t, w.Has(path))

	abs := filepath.Join(root, filepath.FromSlash(path))
	first, err := os.ReadFile(abs)
	require.NoError(t, err)
	info, err := os.Stat(abs)
	require.NoError(t, err)

	// A second write of the same entity must not touch the file.
	require.NoError(t, w.Write(path, map[string]interface{}{"id": 42, "text": "DIFFERENT"}))
	second, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again, err := os.Stat(abs)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestWriteCreatesNestedDirectories(t *testing.T) {
	w, err := NewWriter(t.TempDir(), nil)
	require.NoError(t, err)

	path := PostCommentPath(7, 99)
	require.NoError(t, w.Write(path, map[string]interface{}{"id": 99}))
	assert.True(t, w.Has(path))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(DocPath(1), map[string]interface{}{"id": 1}))

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		assert.NotContains(t, path, ".tmp")
		return nil
	})
	require.NoError(t, err)
}

func TestScanRebuildsManifestFromTree(t *testing.T) {
	root := t.TempDir()

	w, err := NewWriter(root, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(PostPath(1), map[string]interface{}{"id": 1}))
	require.NoError(t, w.Write(PostPath(2), map[string]interface{}{"id": 2}))
	require.NoError(t, w.Write(PostCommentPath(1, 10), map[string]interface{}{"id": 10}))
	require.NoError(t, w.Write(DocPath(5), map[string]interface{}{"id": 5}))

	// A new writer over the same tree knows everything the old one wrote.
	reopened, err := NewWriter(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Manifest().Len())
	assert.True(t, reopened.Has(PostPath(1)))
	assert.True(t, reopened.Has(PostCommentPath(1, 10)))
	assert.False(t, reopened.Has(PostPath(3)))

	assert.Equal(t, 2, reopened.Manifest().CountPrefix(PostPrefix))
	assert.Equal(t, 1, reopened.Manifest().CountPrefix(DocPrefix))
}

func TestScanMissingDirectoryYieldsEmptyManifest(t *testing.T) {
	m, err := ScanManifest(filepath.Join(t.TempDir(), "nothing-here"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestScanIgnoresNonRecordFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "attachments.tsv"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "community.json"), []byte("{}"), 0644))

	m, err := ScanManifest(root)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has("community.json"))
}

func TestWriteRawOverwrites(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, nil)
	require.NoError(t, err)

	require.NoError(t, w.WriteRaw(AttachmentReportPath(), []byte("one\n")))
	require.NoError(t, w.WriteRaw(AttachmentReportPath(), []byte("one\ntwo\n")))

	data, err := os.ReadFile(filepath.Join(root, AttachmentReportPath()))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestWritePreservesPayloadShape(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, nil)
	require.NoError(t, err)

	raw := json.RawMessage(`{"id":3,"nested":{"deep":[1,2,3]},"text":"кириллица"}`)
	require.NoError(t, w.Write(VideoPath(3), raw))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(VideoPath(3))))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(data))
}
