package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/i474232898/city-weather-poster/internal/logger"
)

// FileStore keeps the state as a JSON document on local disk.
type FileStore struct {
	path string

	// rename is os.Rename outside of tests.
	rename func(oldpath, newpath string) error
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		rename: os.Rename,
	}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (RecentSelections, error) {
	log := logger.FromContext(ctx)

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.DebugContext(ctx, "no state file, starting empty", "path", s.path)
			return RecentSelections{}, nil
		}
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	records, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	log.DebugContext(ctx, "loaded state", "path", s.path, "records", len(records))
	return records, nil
}

func (s *FileStore) Save(ctx context.Context, records RecentSelections) error {
	b, err := Encode(records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	if err := s.replaceFile(b); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.FromContext(ctx).DebugContext(ctx, "saved state", "path", s.path, "records", len(records))
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// replaceFile writes b next to the state file and renames it into place, so
// readers see either the old or the new document.
func (s *FileStore) replaceFile(b []byte) (err error) {
	tmpPath := s.path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	n, err := f.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		return err
	}

	return s.rename(tmpPath, s.path)
}
