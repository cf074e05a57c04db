// Package mirror keeps a best-effort copy of each document on the local filesystem.
// The mirror is write-only redundancy: nothing reads from it and its failures
// are logged, never returned.
package mirror

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docsync/internal/logger"
)

// ErrMirrorWrite marks a failed mirror operation in logs.
var ErrMirrorWrite = errors.New("mirror write failed")

// Mirror is the optional redundant write target.
type Mirror interface {
	TryWrite(fileName string, payload []byte)
	TryDelete(fileName string)
}

// FS mirrors documents into a single directory.
type FS struct {
	dir string
	log *logger.Logger
}

// Probe checks once whether dir can hold mirror copies. It returns a nil
// Mirror when dir is empty or unusable, which callers treat as "no mirror".
func Probe(dir string, log *logger.Logger) Mirror {
	log = log.With("mirror")
	if strings.TrimSpace(dir) == "" {
		log.Info("mirror_disabled", map[string]any{"reason": "no directory configured"})
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("mirror_unavailable", err, map[string]any{"dir": dir})
		return nil
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		log.Warn("mirror_unavailable", err, map[string]any{"dir": dir})
		return nil
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	log.Info("mirror_enabled", map[string]any{"dir": dir})
	return &FS{dir: dir, log: log}
}

func (m *FS) path(fileName string) (string, error) {
	base := filepath.Base(fileName)
	if base != fileName || base == "." || base == ".." {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	return filepath.Join(m.dir, base), nil
}

// TryWrite stores payload under fileName atomically (temp file + rename).
func (m *FS) TryWrite(fileName string, payload []byte) {
	if err := m.write(fileName, payload); err != nil {
		m.log.Warn("mirror_write_failed", errors.Join(ErrMirrorWrite, err), map[string]any{"file_name": fileName})
	}
}

func (m *FS) write(fileName string, payload []byte) error {
	dst, err := m.path(fileName)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// TryDelete removes the mirror copy. A missing file is not logged.
func (m *FS) TryDelete(fileName string) {
	p, err := m.path(fileName)
	if err == nil {
		err = os.Remove(p)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("mirror_delete_failed", errors.Join(ErrMirrorWrite, err), map[string]any{"file_name": fileName})
	}
}
