package mirror

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/logger"
)

func TestProbe(t *testing.T) {
	t.Run("disabled without dir", func(t *testing.T) {
		assert.Nil(t, Probe("", logger.Nop()))
	})

	t.Run("creates missing dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "mirror")
		m := Probe(dir, logger.Nop())
		require.NotNil(t, m)
		assert.DirExists(t, dir)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unusable path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		assert.Nil(t, Probe(file, logger.Nop()))
	})
}

func TestFS_WriteAndDelete(t *testing.T) {
	dir := t.TempDir()
	probed := Probe(dir, logger.Nop())
	require.NotNil(t, probed)
	m := probed.(*FS)

	m.TryWrite("doc.pdf", []byte("%PDF"))

	got, err := os.ReadFile(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), got)

	m.TryDelete("doc.pdf")
	assert.NoFileExists(t, filepath.Join(dir, "doc.pdf"))

	// second delete is silent
	var buf bytes.Buffer
	m.log = logger.New(&buf, time.UTC)
	m.TryDelete("doc.pdf")
	assert.Empty(t, buf.String())
}

func TestFS_FailuresAreSwallowed(t *testing.T) {
	dir := t.TempDir()
	probed := Probe(dir, logger.Nop())
	require.NotNil(t, probed)
	m := probed.(*FS)

	var buf bytes.Buffer
	m.log = logger.New(&buf, time.UTC)

	m.TryWrite("../escape.pdf", []byte("x"))
	assert.Contains(t, buf.String(), "mirror_write_failed")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.pdf"))

	buf.Reset()
	require.NoError(t, os.RemoveAll(dir))
	m.TryWrite("doc.pdf", []byte("x"))
	assert.Contains(t, buf.String(), ErrMirrorWrite.Error())
}
