package archivestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSnapshots keeps the archive as a single JSON file. Writes go through a
// temp file and a rename, so a crash leaves either the old or the new
// document, never a partial one.
type FileSnapshots struct {
	Path string
}

func NewFileSnapshots(path string) *FileSnapshots {
	return &FileSnapshots{Path: strings.TrimSpace(path)}
}

func (f *FileSnapshots) ReadSnapshot(ctx context.Context) ([]byte, error) {
	if f == nil || f.Path == "" {
		return nil, ErrInvalidInput
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (f *FileSnapshots) WriteSnapshot(ctx context.Context, data []byte) error {
	if f == nil || f.Path == "" {
		return ErrInvalidInput
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(f.Path, data, 0o644)
}

// BackupSnapshot writes data next to the archive as
// <name>.malformed-<UTC time>, leaving the archive itself untouched.
func (f *FileSnapshots) BackupSnapshot(ctx context.Context, data []byte) (string, error) {
	if f == nil || f.Path == "" {
		return "", ErrInvalidInput
	}
	path := f.Path + ".malformed-" + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
