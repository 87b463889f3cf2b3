package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/ports/repository"
	"telegram-voice-assistant/internal/infra/metrics"
)

var _ repository.RecordStore = (*FileRecordStore)(nil)

// FileRecordStore keeps one JSON file per record under a root directory.
// Writes go to a temp file in the same directory and are renamed into place,
// so a crash mid-write never leaves a truncated record.
type FileRecordStore struct {
	root string
}

func NewFileRecordStore(root string) (*FileRecordStore, error) {
	if root == "" {
		return nil, errors.New("file store: empty root directory")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &FileRecordStore{root: root}, nil
}

func (s *FileRecordStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key)+".json")
}

func (s *FileRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.IncRecordOp("file", "get", "miss")
			return nil, domain.ErrNotFound
		}
		metrics.IncRecordOp("file", "get", "error")
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	metrics.IncRecordOp("file", "get", "ok")
	return b, nil
}

func (s *FileRecordStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeAtomic(s.path(key), value); err != nil {
		metrics.IncRecordOp("file", "put", "error")
		return fmt.Errorf("write %s: %w", key, err)
	}
	metrics.IncRecordOp("file", "put", "ok")
	return nil
}

func (s *FileRecordStore) writeAtomic(path string, value []byte) error {
	dir := filepath.Dir(path)
	// Per-user namespaces are created on first write.
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// SweepTemp removes temp files left behind by writes interrupted before their rename.
// Only files older than olderThan are touched so in-flight writes are never removed.
func (s *FileRecordStore) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep temp files: %w", err)
	}
	return removed, nil
}
