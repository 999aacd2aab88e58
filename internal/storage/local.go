package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	recordingPrefix = "recording-"
	uploadPrefix    = "upload-"
)

// LocalStore keeps recordings on the local filesystem.
type LocalStore struct {
	dir       string
	fixedName string
}

// NewLocalStore creates a local filesystem recording store.
func NewLocalStore(dir, fixedName string) *LocalStore {
	return &LocalStore{dir: dir, fixedName: fixedName}
}

// Allocate returns recording-<uuid>.wav, or the fixed name when configured.
// A fixed name is truncated by the writer, so only the latest session survives.
func (s *LocalStore) Allocate() (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", s.dir, err)
	}
	if s.fixedName != "" {
		return filepath.Join(s.dir, filepath.Base(s.fixedName)), nil
	}
	return filepath.Join(s.dir, recordingPrefix+uuid.NewString()+".wav"), nil
}

// SaveUpload writes data atomically (temp file + rename) under a unique name.
func (s *LocalStore) SaveUpload(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", s.dir, err)
	}
	if ext == "" {
		ext = ".wav"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.dir, uploadPrefix+uuid.NewString()+ext)

	tmp, err := os.CreateTemp(s.dir, ".upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename: %w", err)
	}
	return path, nil
}

// Dir returns the recording directory path.
func (s *LocalStore) Dir() string { return s.dir }
