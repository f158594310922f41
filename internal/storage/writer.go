package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ErrWriteFailed is returned for any I/O failure while saving a stream.
var ErrWriteFailed = errors.New("write failed")

// Writer persists flushed stream payloads under <base>/<sessionID>/.
type Writer struct {
	base      string
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	readDir   func(name string) ([]os.DirEntry, error)
	abs       func(path string) (string, error)
}

// NewWriter returns a writer rooted at base.
func NewWriter(base string) *Writer {
	return &Writer{
		base:      base,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		readDir:   os.ReadDir,
		abs:       filepath.Abs,
	}
}

// Base returns the configured output base directory.
func (w *Writer) Base() string {
	return w.base
}

// Save writes data to <base>/<sessionID>/<fileName>, creating the session
// folder if needed and overwriting an existing file. It returns the
// absolute folder path.
func (w *Writer) Save(data []byte, sessionID, fileName string) (string, error) {
	dir, err := w.abs(filepath.Join(w.base, sessionID))
	if err != nil {
		return "", fmt.Errorf("%w: resolve session folder: %v", ErrWriteFailed, err)
	}
	if err := w.mkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrWriteFailed, dir, err)
	}
	path := filepath.Join(dir, fileName)
	if err := w.writeFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrWriteFailed, path, err)
	}
	return dir, nil
}

// FileInfo describes one saved stream file.
type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// SessionInfo describes one saved session folder.
type SessionInfo struct {
	ID      string     `json:"id"`
	Dir     string     `json:"dir"`
	ModTime time.Time  `json:"modTime"`
	Files   []FileInfo `json:"files"`
}

// ListSessions returns saved session folders, newest first. A missing base
// directory yields an empty list.
func (w *Writer) ListSessions() ([]SessionInfo, error) {
	entries, err := w.readDir(w.base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SessionInfo{}, nil
		}
		return nil, fmt.Errorf("read output directory %s: %w", w.base, err)
	}

	sessions := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(w.base, entry.Name())
		files, err := w.readDir(dir)
		if err != nil {
			continue
		}

		webms := lo.Filter(files, func(f os.DirEntry, _ int) bool {
			return !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ".webm")
		})
		if len(webms) == 0 {
			continue
		}

		info := SessionInfo{ID: entry.Name(), Dir: dir}
		if fi, err := entry.Info(); err == nil {
			info.ModTime = fi.ModTime()
		}
		for _, f := range webms {
			file := FileInfo{Name: f.Name(), Path: filepath.Join(dir, f.Name())}
			if fi, err := f.Info(); err == nil {
				file.Size = fi.Size()
				if fi.ModTime().After(info.ModTime) {
					info.ModTime = fi.ModTime()
				}
			}
			info.Files = append(info.Files, file)
		}
		sessions = append(sessions, info)
	}

	slices.SortFunc(sessions, func(a, b SessionInfo) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return sessions, nil
}
