package main

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// fileMirror is an editor surface backed by a local file. It remembers the
// last content it wrote or read so its own writes are not picked up as edits.
type fileMirror struct {
	path string
	log  zerolog.Logger

	mu   sync.Mutex
	last string
	seen bool
}

func newFileMirror(path string, log zerolog.Logger) *fileMirror {
	return &fileMirror{path: path, log: log}
}

func (m *fileMirror) SetContent(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen && content == m.last {
		return
	}
	if err := writeFileAtomic(m.path, []byte(content)); err != nil {
		m.log.Error().Err(err).Str("file", m.path).Msg("write page to file")
		return
	}
	m.last = content
	m.seen = true
}

// poll reports the file content when it differs from what the mirror last
// saw. A missing file is not a change.
func (m *fileMirror) poll() (string, bool, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	content := string(data)
	if m.seen && content == m.last {
		return "", false, nil
	}
	m.last = content
	m.seen = true
	return content, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
